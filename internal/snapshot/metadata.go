package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/hyperjump/facevault/internal/index"
)

// metadataVersion is the current metadata document version.
// Version 0 is a bare JSON list of display names; version 1 is the
// {"stored_names", "metadata"} document. Both are upconverted on load.
const metadataVersion = 2

type metadataDoc struct {
	Version        int            `json:"version"`
	Dimensions     int            `json:"dimensions"`
	Count          int            `json:"count"`
	VectorChecksum uint32         `json:"vector_checksum"`
	SavedAt        time.Time      `json:"saved_at"`
	Records        []index.Record `json:"records"`
}

type legacyRecord struct {
	ImageID  looseString `json:"image_id"`
	UserID   looseString `json:"user_id"`
	Filename string      `json:"filename"`
	Deleted  bool        `json:"deleted"`
}

type legacyDoc struct {
	StoredNames []string                `json:"stored_names"`
	Metadata    map[string]legacyRecord `json:"metadata"`
}

// looseString accepts a JSON string or number.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	if string(b) == "null" {
		*s = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = looseString(n.String())
	return nil
}

func encodeMetadata(hdr blobHeader, records []index.Record) ([]byte, error) {
	doc := metadataDoc{
		Version:        metadataVersion,
		Dimensions:     hdr.Dimensions,
		Count:          hdr.Count,
		VectorChecksum: hdr.Checksum,
		SavedAt:        time.Now().UTC(),
		Records:        records,
	}
	if doc.Records == nil {
		doc.Records = []index.Record{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// decodeMetadata parses any supported metadata version. The returned
// document has Version set to the version found on disk. count is the
// number of vectors in the paired blob; legacy positions must fall below it.
func decodeMetadata(data []byte, count int) (*metadataDoc, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("metadata document is empty")
	}

	if trimmed[0] == '[' {
		var names []string
		if err := json.Unmarshal(trimmed, &names); err != nil {
			return nil, fmt.Errorf("failed to parse legacy name list: %w", err)
		}
		return upconvertNames(names), nil
	}

	var head struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if head.Version == nil {
		var legacy legacyDoc
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("failed to parse legacy metadata: %w", err)
		}
		return upconvertLegacy(legacy, count)
	}
	if *head.Version != metadataVersion {
		return nil, fmt.Errorf("unsupported metadata version %d", *head.Version)
	}

	var doc metadataDoc
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if len(doc.Records) != doc.Count {
		return nil, fmt.Errorf("metadata lists %d records, header says %d", len(doc.Records), doc.Count)
	}
	return &doc, nil
}

func upconvertNames(names []string) *metadataDoc {
	records := make([]index.Record, len(names))
	for i, name := range names {
		records[i] = index.Record{
			Position:    i,
			TenantID:    index.DefaultTenant,
			ItemID:      itemIDOr(name, i),
			DisplayName: name,
		}
	}
	return &metadataDoc{Version: 0, Count: len(records), Records: records}
}

func upconvertLegacy(doc legacyDoc, count int) (*metadataDoc, error) {
	n := len(doc.StoredNames)
	byPos := make(map[int]legacyRecord, len(doc.Metadata))
	for key, rec := range doc.Metadata {
		pos, err := strconv.Atoi(key)
		if err != nil || pos < 0 {
			return nil, fmt.Errorf("invalid legacy metadata position %q", key)
		}
		if pos >= count {
			return nil, fmt.Errorf("legacy metadata position %q beyond %d vectors", key, count)
		}
		byPos[pos] = rec
		if pos+1 > n {
			n = pos + 1
		}
	}

	records := make([]index.Record, n)
	for pos := 0; pos < n; pos++ {
		name := ""
		if pos < len(doc.StoredNames) {
			name = doc.StoredNames[pos]
		}
		rec := index.Record{Position: pos, TenantID: index.DefaultTenant, DisplayName: name}
		if legacy, ok := byPos[pos]; ok {
			if legacy.UserID != "" {
				rec.TenantID = string(legacy.UserID)
			}
			if rec.DisplayName == "" {
				rec.DisplayName = legacy.Filename
			}
			rec.ItemID = string(legacy.ImageID)
			rec.Deleted = legacy.Deleted
		}
		if rec.ItemID == "" {
			rec.ItemID = itemIDOr(rec.DisplayName, pos)
		}
		records[pos] = rec
	}
	return &metadataDoc{Version: 1, Count: n, Records: records}, nil
}

func itemIDOr(id string, pos int) string {
	if id != "" {
		return id
	}
	return strconv.Itoa(pos)
}

// tenantsOf returns the distinct tenants of records, sorted.
func tenantsOf(records []index.Record) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[r.TenantID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
