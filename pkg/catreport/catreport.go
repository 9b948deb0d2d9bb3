// Package catreport extracts per-subject measures from the XML reports the
// CAT12 segmentation pipeline writes alongside each image: image quality
// ratings and whole-brain volumes from cat_*.xml, and per-region cortical
// thickness from catROIs_*.xml.
package catreport

import (
	"encoding/xml"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned when the report file does not exist.
var ErrNotFound = errors.New("catreport: file not found")

// ErrMissingNode is returned when an expected element is absent from the
// report tree.
var ErrMissingNode = errors.New("catreport: expected element missing")

// MissingValue replaces the literal token "NaN" in list-valued report text
// before numeric parsing. Downstream tables treat -1 as "not measured".
const MissingValue = -1

// ratingCeiling converts CAT12's grade scale (lower is better) into the
// ascending quality scores the original pipeline reports.
const ratingCeiling = 10.5

// Quality holds the image quality ratings of the CAT12 segmentation, each
// rescaled as ratingCeiling minus the raw grade so that higher is better.
type Quality struct {
	Resolution float64
	Noise      float64
	Bias       float64
	IQR        float64
}

// TotalVolumes holds the whole-brain measures of the CAT12 segmentation in
// ml: total intracranial volume and the absolute CSF, grey and white matter
// volumes.
type TotalVolumes struct {
	TIV float64
	CSF float64
	GMV float64
	WMV float64
}

// RegionThickness is one atlas region's mean cortical thickness.
type RegionThickness struct {
	// Name is the region name exactly as listed in the report.
	Name string

	// Thickness is the mean thickness in mm, MissingValue when the report
	// carried NaN for the region.
	Thickness float64
}

// element is a generic XML tree node; the CAT12 reports key sections by
// atlas name, so the tree is walked by tag rather than unmarshalled into a
// fixed struct.
type element struct {
	XMLName  xml.Name
	Text     string    `xml:",chardata"`
	Children []element `xml:",any"`
}

func (e *element) child(name string) *element {
	for i := range e.Children {
		if e.Children[i].XMLName.Local == name {
			return &e.Children[i]
		}
	}
	return nil
}

func (e *element) path(names ...string) *element {
	cur := e
	for _, name := range names {
		cur = cur.child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

func parseFile(path string) (*element, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var root element
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return &root, nil
}

// ParseQuality reads the quality ratings from a cat_*.xml report.
func ParseQuality(path string) (Quality, error) {
	root, err := parseFile(path)
	if err != nil {
		return Quality{}, err
	}
	var q Quality
	for _, field := range []struct {
		tag string
		dst *float64
	}{
		{"res_RMS", &q.Resolution},
		{"NCR", &q.Noise},
		{"ICR", &q.Bias},
		{"IQR", &q.IQR},
	} {
		node := root.path("qualityratings", field.tag)
		if node == nil {
			return Quality{}, errors.Wrapf(ErrMissingNode, "qualityratings/%s in %s", field.tag, path)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(node.Text), 64)
		if err != nil {
			return Quality{}, errors.Wrapf(err, "qualityratings/%s in %s", field.tag, path)
		}
		*field.dst = ratingCeiling - v
	}
	return q, nil
}

// ParseTotalVolumes reads TIV and the absolute tissue-class volumes from a
// cat_*.xml report. vol_abs_CGW lists CSF, grey and white matter in that
// order as bracketed, space-separated text.
func ParseTotalVolumes(path string) (TotalVolumes, error) {
	root, err := parseFile(path)
	if err != nil {
		return TotalVolumes{}, err
	}
	tivNode := root.path("subjectmeasures", "vol_TIV")
	if tivNode == nil {
		return TotalVolumes{}, errors.Wrapf(ErrMissingNode, "subjectmeasures/vol_TIV in %s", path)
	}
	tiv, err := strconv.ParseFloat(strings.TrimSpace(tivNode.Text), 64)
	if err != nil {
		return TotalVolumes{}, errors.Wrapf(err, "subjectmeasures/vol_TIV in %s", path)
	}

	cgwNode := root.path("subjectmeasures", "vol_abs_CGW")
	if cgwNode == nil {
		return TotalVolumes{}, errors.Wrapf(ErrMissingNode, "subjectmeasures/vol_abs_CGW in %s", path)
	}
	cgw, err := parseNumberList(cgwNode.Text)
	if err != nil {
		return TotalVolumes{}, errors.Wrapf(err, "subjectmeasures/vol_abs_CGW in %s", path)
	}
	if len(cgw) < 3 {
		return TotalVolumes{}, errors.Wrapf(ErrMissingNode, "vol_abs_CGW lists %d values, want 3 in %s", len(cgw), path)
	}
	return TotalVolumes{TIV: tiv, CSF: cgw[0], GMV: cgw[1], WMV: cgw[2]}, nil
}

// ParseROIThickness reads the per-region mean cortical thickness for one
// atlas from a catROIs_*.xml report, zipping the atlas section's region
// names with its thickness list.
func ParseROIThickness(path, atlasName string) ([]RegionThickness, error) {
	root, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	atlas := root.child(atlasName)
	if atlas == nil {
		return nil, errors.Wrapf(ErrMissingNode, "atlas %q in %s", atlasName, path)
	}
	names := atlas.child("names")
	if names == nil {
		return nil, errors.Wrapf(ErrMissingNode, "%s/names in %s", atlasName, path)
	}
	thicknessNode := atlas.path("data", "thickness")
	if thicknessNode == nil {
		return nil, errors.Wrapf(ErrMissingNode, "%s/data/thickness in %s", atlasName, path)
	}
	values, err := parseNumberList(thicknessNode.Text)
	if err != nil {
		return nil, errors.Wrapf(err, "%s/data/thickness in %s", atlasName, path)
	}

	var out []RegionThickness
	for _, item := range names.Children {
		if item.XMLName.Local != "item" {
			continue
		}
		if len(out) == len(values) {
			break
		}
		out = append(out, RegionThickness{
			Name:      strings.TrimSpace(item.Text),
			Thickness: values[len(out)],
		})
	}
	return out, nil
}

// parseNumberList parses list-valued report text: brackets are stripped,
// internal whitespace separates values, and the literal token "NaN" stands
// for MissingValue.
func parseNumberList(text string) ([]float64, error) {
	cleaned := strings.NewReplacer("[", " ", "]", " ", ",", " ").Replace(text)
	fields := strings.Fields(cleaned)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		if f == "NaN" {
			out = append(out, MissingValue)
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "token %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}
