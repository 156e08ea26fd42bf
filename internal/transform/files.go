package transform

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/hashicorp/hcl/v2/hclwrite"

	"github.com/agentic-research/lenstree/api"
)

// LoadDir reads every *.hcl and *.json transform file in dir, in name
// order. A missing directory yields no declarations.
func LoadDir(fs billy.Filesystem, dir string) ([]api.TransformDecl, error) {
	infos, err := fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lens dir %s: %w", dir, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	var decls []api.TransformDecl
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		name := fi.Name()
		if !strings.HasSuffix(name, ".hcl") && !strings.HasSuffix(name, ".json") {
			continue
		}
		file := path.Join(dir, name)
		src, err := util.ReadFile(fs, file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		cfg, err := Parse(file, src)
		if err != nil {
			return nil, err
		}
		decls = append(decls, cfg.Transforms...)
	}
	return decls, nil
}

// Parse decodes one transform file. The syntax is chosen by the file
// name suffix.
func Parse(filename string, src []byte) (*api.LoadConfig, error) {
	var cfg api.LoadConfig
	if err := hclsimple.Decode(filename, src, nil, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	return &cfg, nil
}

// Format renders decls as native HCL, the inverse of Parse.
func Format(decls []api.TransformDecl) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	for i := range decls {
		if i > 0 {
			body.AppendNewline()
		}
		body.AppendBlock(gohcl.EncodeAsBlock(&decls[i], "transform"))
	}
	return f.Bytes()
}
