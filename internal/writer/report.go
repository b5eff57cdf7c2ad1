package writer

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/fromager-go/fromager/internal/reqs"
)

// ReadBuildOrder parses a previously-written build-order.json file.
func ReadBuildOrder(r io.Reader) ([]BuildOrderEntry, error) {
	var entries []BuildOrderEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "decoding build order")
	}
	return entries, nil
}

var csvFields = []struct{ key, header string }{
	{"dist", "Distribution Name"},
	{"version", "Version"},
	{"req", "Original Requirement"},
	{"type", "Dependency Type"},
	{"prebuilt", "Pre-built Package"},
	{"order", "Build Order"},
}

// WriteCSV renders entries as a spreadsheet-importable CSV: one row
// per build-order step, numbered from 1, with the full dependency
// chain columns a human reviewing the build would want.
func WriteCSV(w io.Writer, entries []BuildOrderEntry) error {
	cw := csv.NewWriter(w)

	headers := make([]string, len(csvFields))
	for i, f := range csvFields {
		headers[i] = f.header
	}
	if err := cw.Write(headers); err != nil {
		return err
	}

	for i, e := range entries {
		row := []string{
			e.Dist,
			e.Version,
			e.Req,
			e.SourceURLType,
			strconv.FormatBool(e.PreBuilt),
			strconv.Itoa(i + 1),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summarize cross-references several build-order files (one per image
// variant, conventionally named by the directory they live in),
// reporting for each distribution which version each file pins it to
// and whether every file agrees.
func Summarize(w io.Writer, filenames []string, fileEntries map[string][]BuildOrderEntry) error {
	distToFileVersion := map[string]map[string]string{}
	for _, filename := range filenames {
		for _, e := range fileEntries[filename] {
			key := reqs.OverrideModuleName(e.Dist)
			if distToFileVersion[key] == nil {
				distToFileVersion[key] = map[string]string{}
			}
			distToFileVersion[key][filename] = e.Version
		}
	}

	imageNames := make([]string, len(filenames))
	for i, filename := range filenames {
		imageNames[i] = filepath.Base(filepath.Dir(filename))
	}

	cw := csv.NewWriter(w)
	header := append([]string{"Distribution Name"}, imageNames...)
	header = append(header, "Same Version")
	if err := cw.Write(header); err != nil {
		return err
	}

	dists := make([]string, 0, len(distToFileVersion))
	for d := range distToFileVersion {
		dists = append(dists, d)
	}
	sort.Strings(dists)

	for _, dist := range dists {
		presentIn := distToFileVersion[dist]
		row := []string{dist}
		versions := map[string]bool{}
		for _, filename := range filenames {
			v := presentIn[filename]
			row = append(row, v)
			if v != "" {
				versions[v] = true
			}
		}
		row = append(row, strconv.FormatBool(len(versions) == 1))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
