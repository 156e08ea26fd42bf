package api

// LoadConfig is the root of a transform declaration file. Files ending in
// .hcl use native HCL syntax; files ending in .json use HCL's JSON form.
//
//	transform "Hosts" {
//	  lens = "Hosts.lns"
//	  incl = ["/etc/hosts"]
//	}
type LoadConfig struct {
	// Transforms declared by the file, in order.
	Transforms []TransformDecl `hcl:"transform,block" json:"transform,omitempty"`
}

// TransformDecl pairs a lens with the files it manages.
type TransformDecl struct {
	// Name of the transform; it becomes /augeas/load/<Name>.
	Name string `hcl:"name,label" json:"name"`
	// Lens is the name of a registered lens, e.g. "Hosts.lns".
	Lens string `hcl:"lens" json:"lens"`
	// Incl lists absolute glob patterns of files to manage.
	Incl []string `hcl:"incl" json:"incl"`
	// Excl lists glob patterns removed from Incl. A pattern without a
	// slash is matched against the base name only.
	Excl []string `hcl:"excl,optional" json:"excl,omitempty"`
}
