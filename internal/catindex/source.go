package catindex

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/avelichko/defect-classifier/constants"
)

// XLSXSource reads the category reference from a workbook: category names in
// the "Наименование" column (third column when the header is missing), data
// from row 2. The fingerprint is the sha256 of the file bytes, so touching
// the file without changing it does not force a rebuild.
type XLSXSource struct {
	Path string
}

func (s *XLSXSource) Load() ([]string, string, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", s.Path, err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", s.Path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, "", fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fingerprint(raw), nil
	}

	nameCol := 2 // reference workbooks keep names in the third column
	for i, h := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(h), constants.ReferenceNameColumn) {
			nameCol = i
			break
		}
	}

	var categories []string
	for _, row := range rows[1:] {
		if nameCol >= len(row) {
			continue
		}
		name := strings.TrimSpace(row[nameCol])
		if name != "" {
			categories = append(categories, name)
		}
	}
	return categories, fingerprint(raw), nil
}

func (s *XLSXSource) Fingerprint() (string, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", s.Path, err)
	}
	return fingerprint(raw), nil
}

func fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// FingerprintBytes exposes the content fingerprint for callers that load
// reference data themselves.
func FingerprintBytes(raw []byte) string { return fingerprint(raw) }

// StaticSource serves a fixed category list. Used by the CLI when the
// reference is passed as a flat text file, and by tests.
type StaticSource struct {
	Names   []string
	Version string
}

func (s *StaticSource) Load() ([]string, string, error) {
	return append([]string(nil), s.Names...), s.Version, nil
}

func (s *StaticSource) Fingerprint() (string, error) {
	return s.Version, nil
}
