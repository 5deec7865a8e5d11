package pool

import (
	"net/url"
	"strings"
)

// Derived returns the pattern and product resolvables defined by the
// special provides of package r: "pattern() = name" together with
// pattern-category(), pattern-icon(), pattern-order() and
// pattern-visible(), or "product() = name" with product-label(),
// product-type(), product-url(...) and product-flags().
func Derived(r *Resolvable) []*Resolvable {
	var out []*Resolvable
	if pat := patternFrom(r); pat != nil {
		out = append(out, pat)
	}
	if prod := productFrom(r); prod != nil {
		out = append(out, prod)
	}
	return out
}

// specialProvides collects the values of "tag() = value" provides.
func specialProvides(r *Resolvable, tag string) []string {
	var out []string
	for _, c := range r.DepNames("provides") {
		if !strings.HasPrefix(c, tag+" ") && c != tag {
			continue
		}
		if i := strings.Index(c, "= "); i >= 0 {
			v := strings.TrimSpace(c[i+2:])
			if dec, err := url.PathUnescape(v); err == nil {
				v = dec
			}
			out = append(out, v)
		} else {
			out = append(out, "")
		}
	}
	return out
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func patternFrom(r *Resolvable) *Resolvable {
	name := first(specialProvides(r, "pattern()"))
	if name == "" {
		return nil
	}
	order := first(specialProvides(r, "pattern-order()"))
	return &Resolvable{
		Kind:        Pattern,
		Name:        name,
		Edition:     r.Edition,
		Arch:        r.Arch,
		Summary:     r.Summary,
		Description: r.Description,
		Vendor:      r.Vendor,
		MediaNr:     r.MediaNr,
		Deps:        requiresOf(r),
		Pattern: &PatternInfo{
			Category:    first(specialProvides(r, "pattern-category()")),
			UserVisible: len(specialProvides(r, "pattern-visible()")) > 0,
			Icon:        first(specialProvides(r, "pattern-icon()")),
			Order:       order,
		},
	}
}

func productFrom(r *Resolvable) *Resolvable {
	name := first(specialProvides(r, "product()"))
	if name == "" {
		return nil
	}
	prod := &Resolvable{
		Kind:        Product,
		Name:        name,
		Edition:     r.Edition,
		Arch:        r.Arch,
		Summary:     first(specialProvides(r, "product-label()")),
		Description: r.Description,
		Vendor:      r.Vendor,
		MediaNr:     r.MediaNr,
		Product: &ProductInfo{
			Type:         first(specialProvides(r, "product-type()")),
			DisplayName:  first(specialProvides(r, "product-label()")),
			ShortName:    first(specialProvides(r, "product-label()")),
			RelNotesURL:  first(specialProvides(r, "product-url(releasenotes)")),
			UpdateURLs:   specialProvides(r, "product-url(update)"),
			ExtraURLs:    specialProvides(r, "product-url(extra)"),
			OptionalURLs: specialProvides(r, "product-url(optional)"),
			Flags:        specialProvides(r, "product-flags()"),
		},
	}
	if prod.Summary == "" {
		prod.Summary = r.Summary
	}
	return prod
}

func requiresOf(r *Resolvable) []Dependency {
	var deps []Dependency
	for _, d := range r.Deps {
		if d.Kind == "requires" || d.Kind == "recommends" || d.Kind == "suggests" {
			deps = append(deps, d)
		}
	}
	return deps
}
