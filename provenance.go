/*
Copyright © 2020 the ObsProc authors.
This file is part of ObsProc.

ObsProc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ObsProc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ObsProc.  If not, see <http://www.gnu.org/licenses/>.
*/

package obsproc

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/esmtools/obsproc/internal/hash"
)

// Ancestor is an input file recorded in a provenance record, identified
// by path and content checksum.
type Ancestor struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}

// Provenance describes the inputs and processing that produced an output
// file. It is written as a JSON sidecar next to the product.
type Provenance struct {
	Caption    string     `json:"caption"`
	Domains    []string   `json:"domains,omitempty"`
	Authors    []string   `json:"authors,omitempty"`
	Projects   []string   `json:"projects,omitempty"`
	References []string   `json:"references,omitempty"`
	Ancestors  []Ancestor `json:"ancestors"`
	Settings   string     `json:"settings,omitempty"`
	Software   string     `json:"software"`
	Created    time.Time  `json:"created"`
}

// NewProvenance returns a provenance record with the software version
// filled in.
func NewProvenance(caption string) *Provenance {
	return &Provenance{
		Caption:  caption,
		Software: "obsproc v" + Version,
	}
}

// AddAncestor records an input file and its content checksum.
func (p *Provenance) AddAncestor(path string) error {
	sum, err := hash.File(path)
	if err != nil {
		return fmt.Errorf("obsproc: provenance ancestor %s: %v", path, err)
	}
	p.Ancestors = append(p.Ancestors, Ancestor{Path: path, Checksum: sum})
	return nil
}

// RecordSettings stores a checksum of the configuration that produced
// the product, so reruns with changed settings are distinguishable even
// when the inputs are identical.
func (p *Provenance) RecordSettings(settings interface{}) {
	p.Settings = hash.Object(settings)
}

// Write stores the record as a JSON sidecar next to the given product
// file, returning the sidecar path. It must only be called after the
// product file has been written successfully.
func (p *Provenance) Write(productPath string) (string, error) {
	p.Created = time.Now().UTC()
	sidecar := strings.TrimSuffix(productPath, ".nc") + "_provenance.json"
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("obsproc: encoding provenance for %s: %v", productPath, err)
	}
	if err := ioutil.WriteFile(sidecar, append(b, '\n'), 0644); err != nil {
		return "", fmt.Errorf("obsproc: writing provenance for %s: %v", productPath, err)
	}
	return sidecar, nil
}
