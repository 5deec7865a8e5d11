package target

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"pkgbind/pkg/pool"
)

// ProductsDir holds one .prod file per installed product.
const ProductsDir = "etc/products.d"

type prodFile struct {
	XMLName      xml.Name  `xml:"product"`
	Vendor       string    `xml:"vendor"`
	Name         string    `xml:"name"`
	Version      string    `xml:"version"`
	Release      string    `xml:"release"`
	Arch         string    `xml:"arch"`
	ProductLine  string    `xml:"productline"`
	Summary      string    `xml:"summary"`
	ShortSummary string    `xml:"shortsummary"`
	Description  string    `xml:"description"`
	URLs         []prodURL `xml:"urls>url"`
	Flags        []string  `xml:"flags>flag"`
}

type prodURL struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// ReadProducts parses the .prod files of dir. A missing directory has no
// products.
func ReadProducts(dir string) ([]*pool.Resolvable, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.prod"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	base := ""
	if link, err := os.Readlink(filepath.Join(dir, "baseproduct")); err == nil {
		base = filepath.Base(link)
	}

	var out []*pool.Resolvable
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return out, errors.Wrapf(err, "read %s", path)
		}
		var pf prodFile
		if err := xml.Unmarshal(data, &pf); err != nil {
			return out, errors.Wrapf(err, "parse %s", path)
		}
		out = append(out, pf.resolvable(filepath.Base(path) == base))
	}
	return out, nil
}

func (pf prodFile) resolvable(isBase bool) *pool.Resolvable {
	info := &pool.ProductInfo{
		Type:        "addon",
		DisplayName: strings.TrimSpace(pf.Summary),
		ShortName:   strings.TrimSpace(pf.ShortSummary),
		Flags:       pf.Flags,
	}
	if isBase {
		info.Type = "base"
	}
	for _, u := range pf.URLs {
		v := strings.TrimSpace(u.Value)
		switch u.Name {
		case "releasenotes":
			info.RelNotesURL = v
		case "update":
			info.UpdateURLs = append(info.UpdateURLs, v)
		case "extra":
			info.ExtraURLs = append(info.ExtraURLs, v)
		case "optional":
			info.OptionalURLs = append(info.OptionalURLs, v)
		}
	}
	if info.ShortName == "" {
		info.ShortName = info.DisplayName
	}

	return &pool.Resolvable{
		Kind:        pool.Product,
		Name:        pf.Name,
		Edition:     pool.NewEdition(0, pf.Version, pf.Release),
		Arch:        pf.Arch,
		Summary:     info.DisplayName,
		Description: strings.TrimSpace(pf.Description),
		Vendor:      pf.Vendor,
		Repo:        pool.SystemRepo,
		Product:     info,
	}
}
