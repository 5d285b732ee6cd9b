package fingerprint

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/klauspost/compress/flate"
	"gopkg.in/yaml.v2"

	"synthledger/pkg/errors"
)

// requiredMembers are the ZIP members every archive must carry regardless
// of which optional members it adds.
var requiredMembers = []string{"manifest.json", "schema.yaml", "statistics.json", "privacy_audit.json"}

func init() {
	// Archive compression uses klauspost/compress at the best flate level,
	// registered against the stdlib zip.Writer/Reader so callers keep using
	// archive/zip's ordinary API.
	zip.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})
	zip.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
}

// Write serializes fp to a ZIP archive at path, computing a fresh SHA-256
// checksum of every member and recording them in manifest.json.
func Write(fp *Fingerprint, path string) error {
	members, err := encodeMembers(fp)
	if err != nil {
		return err
	}

	checksums := make(map[string]string, len(members))
	for name, data := range members {
		sum := sha256.Sum256(data)
		checksums[name] = hex.EncodeToString(sum[:])
	}

	fp.Manifest.Version = ArchiveVersion
	fp.Manifest.Checksums = checksums
	manifestData, err := json.MarshalIndent(fp.Manifest, "", "  ")
	if err != nil {
		return errors.OutputError("fingerprint.write", "encode manifest: "+err.Error())
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.OutputError("fingerprint.write", "create archive: "+err.Error())
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	if err := writeMember(zw, "manifest.json", manifestData); err != nil {
		return err
	}

	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic member order across runs

	for _, name := range names {
		if err := writeMember(zw, name, members[name]); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return errors.OutputError("fingerprint.write", "close archive: "+err.Error())
	}
	return nil
}

func writeMember(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return errors.OutputError("fingerprint.write", fmt.Sprintf("create member %s: %s", name, err))
	}
	if _, err := w.Write(data); err != nil {
		return errors.OutputError("fingerprint.write", fmt.Sprintf("write member %s: %s", name, err))
	}
	return nil
}

// encodeMembers renders every member Write will emit (required plus
// whichever optional members fp actually carries) without touching the
// manifest, so Write can checksum them first.
func encodeMembers(fp *Fingerprint) (map[string][]byte, error) {
	members := make(map[string][]byte)

	schemaData, err := yaml.Marshal(fp.Schema)
	if err != nil {
		return nil, errors.OutputError("fingerprint.write", "encode schema: "+err.Error())
	}
	members["schema.yaml"] = schemaData

	statsData, err := json.MarshalIndent(fp.Statistics, "", "  ")
	if err != nil {
		return nil, errors.OutputError("fingerprint.write", "encode statistics: "+err.Error())
	}
	members["statistics.json"] = statsData

	auditData, err := json.MarshalIndent(fp.PrivacyAudit, "", "  ")
	if err != nil {
		return nil, errors.OutputError("fingerprint.write", "encode privacy audit: "+err.Error())
	}
	members["privacy_audit.json"] = auditData

	if fp.Correlations != nil && len(fp.Correlations.Entries) > 0 {
		corrData, err := json.MarshalIndent(fp.Correlations, "", "  ")
		if err != nil {
			return nil, errors.OutputError("fingerprint.write", "encode correlations: "+err.Error())
		}
		members["correlations.json"] = corrData
	}
	if len(fp.Integrity) > 0 {
		members["integrity.json"] = fp.Integrity
	}
	if len(fp.Rules) > 0 {
		members["rules.json"] = fp.Rules
	}
	if len(fp.Anomalies) > 0 {
		members["anomalies.json"] = fp.Anomalies
	}

	return members, nil
}

// Load opens a fingerprint archive, validates every member's SHA-256 against
// the manifest, and decodes the required members:
// a checksum mismatch or a missing required member is fatal; a version mismatch is only logged by the caller, not
// rejected here.
func Load(path string) (*Fingerprint, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.ValidationError("fingerprint.load", "open archive: "+err.Error())
	}
	defer zr.Close()

	raw := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, errors.ValidationError("fingerprint.load", "open member "+f.Name+": "+err.Error())
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errors.ValidationError("fingerprint.load", "read member "+f.Name+": "+err.Error())
		}
		raw[f.Name] = data
	}

	manifestData, ok := raw["manifest.json"]
	if !ok {
		return nil, errors.ValidationError("fingerprint.load", "missing required member manifest.json")
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, errors.ValidationError("fingerprint.load", "decode manifest: "+err.Error())
	}

	for _, name := range requiredMembers {
		if name == "manifest.json" {
			continue
		}
		if _, ok := raw[name]; !ok {
			return nil, errors.ValidationError("fingerprint.load", "missing required member "+name)
		}
	}

	for name, data := range raw {
		if name == "manifest.json" {
			continue
		}
		want, ok := manifest.Checksums[name]
		if !ok {
			return nil, errors.ValidationError("fingerprint.load", "member "+name+" not listed in manifest checksums")
		}
		sum := sha256.Sum256(data)
		got := hex.EncodeToString(sum[:])
		if got != want {
			return nil, errors.ValidationError("fingerprint.load", "checksum mismatch for "+name)
		}
	}

	var schema SchemaFingerprint
	if err := yaml.Unmarshal(raw["schema.yaml"], &schema); err != nil {
		return nil, errors.ValidationError("fingerprint.load", "decode schema: "+err.Error())
	}

	var stats StatisticsFingerprint
	if err := json.Unmarshal(raw["statistics.json"], &stats); err != nil {
		return nil, errors.ValidationError("fingerprint.load", "decode statistics: "+err.Error())
	}

	var audit PrivacyAudit
	if err := json.Unmarshal(raw["privacy_audit.json"], &audit); err != nil {
		return nil, errors.ValidationError("fingerprint.load", "decode privacy audit: "+err.Error())
	}

	fp := &Fingerprint{
		Manifest:     manifest,
		Schema:       schema,
		Statistics:   stats,
		PrivacyAudit: audit,
		Integrity:    raw["integrity.json"],
		Rules:        raw["rules.json"],
		Anomalies:    raw["anomalies.json"],
	}

	if corrData, ok := raw["correlations.json"]; ok {
		var corr Correlations
		if err := json.Unmarshal(corrData, &corr); err != nil {
			return nil, errors.ValidationError("fingerprint.load", "decode correlations: "+err.Error())
		}
		fp.Correlations = &corr
	}

	return fp, nil
}

// VersionMismatch reports whether fp's manifest version differs from the
// version this build writes; callers log a warning rather than failing.
func VersionMismatch(fp *Fingerprint) bool {
	return fp.Manifest.Version != ArchiveVersion
}
