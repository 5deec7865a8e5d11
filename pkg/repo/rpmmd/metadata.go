package rpmmd

import "encoding/xml"

type Repomd struct {
	XMLName  xml.Name     `xml:"repomd"`
	Revision string       `xml:"revision"`
	Data     []RepomdData `xml:"data"`
}

type RepomdData struct {
	Type         string   `xml:"type,attr"`
	Checksum     Checksum `xml:"checksum"`
	OpenChecksum Checksum `xml:"open-checksum"`
	Location     Location `xml:"location"`
	Timestamp    int64    `xml:"timestamp"`
	Size         int64    `xml:"size"`
}

// Find returns the data entry of type t.
func (r *Repomd) Find(t string) (RepomdData, bool) {
	for _, d := range r.Data {
		if d.Type == t {
			return d, true
		}
	}
	return RepomdData{}, false
}

type Metadata struct {
	XMLName  xml.Name  `xml:"metadata"`
	Packages []Package `xml:"package"`
}

type Package struct {
	Type        string   `xml:"type,attr"`
	Name        string   `xml:"name"`
	Arch        string   `xml:"arch"`
	Version     Version  `xml:"version"`
	Checksum    Checksum `xml:"checksum"`
	Summary     string   `xml:"summary"`
	Description string   `xml:"description"`
	Packager    string   `xml:"packager"`
	URL         string   `xml:"url"`
	Size        Size     `xml:"size"`
	Location    Location `xml:"location"`
	Format      Format   `xml:"format"`
}

type Version struct {
	Epoch string `xml:"epoch,attr"`
	Ver   string `xml:"ver,attr"`
	Rel   string `xml:"rel,attr"`
}

type Checksum struct {
	Type  string `xml:"type,attr"`
	Pkgid string `xml:"pkgid,attr"`
	Value string `xml:",chardata"`
}

type Location struct {
	Href string `xml:"href,attr"`
	Base string `xml:"base,attr"`
}

type Size struct {
	Package   int64 `xml:"package,attr"`
	Installed int64 `xml:"installed,attr"`
	Archive   int64 `xml:"archive,attr"`
}

// Format holds the rpm: namespaced header data of a package.
type Format struct {
	License     string   `xml:"license"`
	Vendor      string   `xml:"vendor"`
	Group       string   `xml:"group"`
	SourceRPM   string   `xml:"sourcerpm"`
	Provides    Entries  `xml:"provides"`
	Requires    Entries  `xml:"requires"`
	Conflicts   Entries  `xml:"conflicts"`
	Obsoletes   Entries  `xml:"obsoletes"`
	Recommends  Entries  `xml:"recommends"`
	Suggests    Entries  `xml:"suggests"`
	Supplements Entries  `xml:"supplements"`
	Enhances    Entries  `xml:"enhances"`
	Files       []string `xml:"file"`
}

type Entries struct {
	Entries []Entry `xml:"entry"`
}

type Entry struct {
	Name  string `xml:"name,attr"`
	Flags string `xml:"flags,attr"`
	Epoch string `xml:"epoch,attr"`
	Ver   string `xml:"ver,attr"`
	Rel   string `xml:"rel,attr"`
	Pre   string `xml:"pre,attr"`
}

type Updates struct {
	XMLName xml.Name `xml:"updates"`
	Updates []Update `xml:"update"`
}

type Update struct {
	From        string       `xml:"from,attr"`
	Status      string       `xml:"status,attr"`
	Type        string       `xml:"type,attr"`
	Version     string       `xml:"version,attr"`
	ID          string       `xml:"id"`
	Title       string       `xml:"title"`
	Severity    string       `xml:"severity"`
	Release     string       `xml:"release"`
	Issued      Issued       `xml:"issued"`
	Description string       `xml:"description"`
	Message     string       `xml:"message"`
	Collections []Collection `xml:"pkglist>collection"`
}

type Issued struct {
	Date string `xml:"date,attr"`
}

type Collection struct {
	Packages []UpdatePackage `xml:"package"`
}

type UpdatePackage struct {
	Name             string    `xml:"name,attr"`
	Epoch            string    `xml:"epoch,attr"`
	Version          string    `xml:"version,attr"`
	Release          string    `xml:"release,attr"`
	Arch             string    `xml:"arch,attr"`
	Filename         string    `xml:"filename"`
	RebootSuggested  *struct{} `xml:"reboot_suggested"`
	RestartSuggested *struct{} `xml:"restart_suggested"`
	ReloginSuggested *struct{} `xml:"relogin_suggested"`
}

// SuseData carries the SUSE extensions of packages, e.g. their EULA.
type SuseData struct {
	XMLName  xml.Name      `xml:"susedata"`
	Packages []SusePackage `xml:"package"`
}

type SusePackage struct {
	Name    string  `xml:"name,attr"`
	Arch    string  `xml:"arch,attr"`
	Version Version `xml:"version"`
	Eula    string  `xml:"eula"`
}
