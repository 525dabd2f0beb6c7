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
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestProvenance(t *testing.T) {
	dir, err := ioutil.TempDir("", "obsproc")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.nc")
	if err := ioutil.WriteFile(input, []byte("input data"), 0644); err != nil {
		t.Fatal(err)
	}

	p := NewProvenance("Test product.")
	p.Domains = []string{"global"}
	if err := p.AddAncestor(input); err != nil {
		t.Fatal(err)
	}
	if len(p.Ancestors) != 1 {
		t.Fatalf("got %d ancestors, want 1", len(p.Ancestors))
	}
	if p.Ancestors[0].Checksum == "" {
		t.Error("ancestor checksum is empty")
	}
	if !strings.HasPrefix(p.Software, "obsproc v") {
		t.Errorf("software = %q", p.Software)
	}

	product := filepath.Join(dir, "product.nc")
	sidecar, err := p.Write(product)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "product_provenance.json"); sidecar != want {
		t.Errorf("sidecar path = %q, want %q", sidecar, want)
	}

	b, err := ioutil.ReadFile(sidecar)
	if err != nil {
		t.Fatal(err)
	}
	var got Provenance
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Caption != "Test product." {
		t.Errorf("caption = %q", got.Caption)
	}
	if len(got.Ancestors) != 1 || got.Ancestors[0].Path != input {
		t.Errorf("ancestors = %+v", got.Ancestors)
	}
	if got.Created.IsZero() {
		t.Error("created timestamp not set")
	}
}

func TestProvenanceSettings(t *testing.T) {
	type settings struct {
		OutDir  string
		EndYear int
	}

	p := NewProvenance("Test product.")
	p.RecordSettings(settings{OutDir: "out", EndYear: 2018})
	if p.Settings == "" {
		t.Fatal("settings checksum is empty")
	}

	q := NewProvenance("Test product.")
	q.RecordSettings(settings{OutDir: "out", EndYear: 2018})
	if q.Settings != p.Settings {
		t.Error("identical settings hash differently")
	}
	q.RecordSettings(settings{OutDir: "out", EndYear: 2019})
	if q.Settings == p.Settings {
		t.Error("changed settings produce the same checksum")
	}
}

func TestProvenanceMissingAncestor(t *testing.T) {
	p := NewProvenance("Test product.")
	if err := p.AddAncestor("/nonexistent/file.nc"); err == nil {
		t.Error("expected error for missing ancestor file")
	}
}
