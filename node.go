package reactivefs

// NodeType is the coarse type tag returned by Stat and carried by nodes.
type NodeType string

const (
	FileType NodeType = "file"
	DirType  NodeType = "dir"
)

// Stats is the minimal descriptor returned by point lookups that do not
// need tree shape.
type Stats struct {
	Type NodeType `json:"type"`
}

// Node provides read-only access to a snapshot node. Concrete variants are
// File, Directory and ShallowDirectory.
type Node interface {
	// Name returns the node's name (last path segment), "" for the root.
	Name() string

	// Path returns the full canonical path to the node.
	Path() string

	// Type returns the node's coarse type tag.
	Type() NodeType
}

// File is a text file snapshot.
type File struct {
	name    string
	path    string
	content string
}

// NewFile builds a file node from its name, full path and content.
func NewFile(name, path, content string) *File {
	return &File{name: name, path: path, content: content}
}

func (f *File) Name() string   { return f.name }
func (f *File) Path() string   { return f.path }
func (f *File) Type() NodeType { return FileType }

// Content returns the file's text, "" for a file saved without content.
func (f *File) Content() string { return f.content }

// Directory is a directory snapshot that exclusively owns its children.
// Children are ordered by name; sibling names are unique.
type Directory struct {
	name     string
	path     string
	children []Node
}

// NewDirectory builds a directory node owning the given children.
func NewDirectory(name, path string, children []Node) *Directory {
	return &Directory{name: name, path: path, children: children}
}

func (d *Directory) Name() string   { return d.name }
func (d *Directory) Path() string   { return d.path }
func (d *Directory) Type() NodeType { return DirType }

// Children returns the directory's direct children.
func (d *Directory) Children() []Node { return d.children }

// Child returns the direct child with the given name, or nil.
func (d *Directory) Child(name string) Node {
	for _, c := range d.children {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// ShallowDirectory is a directory reference without materialized children,
// used in single-level listings.
type ShallowDirectory struct {
	name string
	path string
}

// NewShallowDirectory builds a childless directory reference.
func NewShallowDirectory(name, path string) *ShallowDirectory {
	return &ShallowDirectory{name: name, path: path}
}

func (d *ShallowDirectory) Name() string   { return d.name }
func (d *ShallowDirectory) Path() string   { return d.path }
func (d *ShallowDirectory) Type() NodeType { return DirType }
