package fingerprint

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func sampleTable() Table {
	amounts := make([]string, 0, 200)
	statuses := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		amounts = append(amounts, strconv.FormatFloat(100+float64(i)*3.7, 'f', 2, 64))
		if i%7 == 0 {
			statuses = append(statuses, "rare")
		} else if i%2 == 0 {
			statuses = append(statuses, "matched")
		} else {
			statuses = append(statuses, "variance")
		}
	}
	return Table{
		Name: "ap_invoices",
		Columns: []Column{
			{Name: "gross_amount", Values: amounts},
			{Name: "match_status", Values: statuses},
		},
	}
}

func TestExtractInfersSemanticTypes(t *testing.T) {
	cfg := Config{EpsilonBudget: 5.0, KAnonymity: 5, WinsorizeLowPct: 0.01, WinsorizeHighPct: 0.99, MasterSeed: 42}
	ex, err := NewExtractor(cfg, testLogger())
	require.NoError(t, err)

	fp := ex.Extract([]Table{sampleTable()})

	require.Len(t, fp.Schema.Tables, 1)
	cols := fp.Schema.Tables[0].Columns
	require.Len(t, cols, 2)

	var gotNumeric, gotCategorical bool
	for _, c := range cols {
		if c.Name == "gross_amount" {
			assert.Equal(t, "numeric", c.SemanticType)
			gotNumeric = true
		}
		if c.Name == "match_status" {
			assert.Equal(t, "categorical", c.SemanticType)
			gotCategorical = true
		}
	}
	assert.True(t, gotNumeric)
	assert.True(t, gotCategorical)
}

func TestExtractRespectsEpsilonBudget(t *testing.T) {
	cfg := Config{EpsilonBudget: 2.0, KAnonymity: 5, WinsorizeLowPct: 0.01, WinsorizeHighPct: 0.99, MasterSeed: 7}
	ex, err := NewExtractor(cfg, testLogger())
	require.NoError(t, err)

	fp := ex.Extract([]Table{sampleTable()})

	assert.LessOrEqual(t, fp.PrivacyAudit.TotalEpsilonSpent, cfg.EpsilonBudget+1e-9)
	assert.Equal(t, cfg.EpsilonBudget, fp.PrivacyAudit.EpsilonBudget)
	assert.NotEmpty(t, fp.PrivacyAudit.PerStatisticEpsilonSpent)
}

func TestExtractEnforcesKAnonymity(t *testing.T) {
	cfg := Config{EpsilonBudget: 5.0, KAnonymity: 10, WinsorizeLowPct: 0.01, WinsorizeHighPct: 0.99, MasterSeed: 1}
	ex, err := NewExtractor(cfg, testLogger())
	require.NoError(t, err)

	fp := ex.Extract([]Table{sampleTable()})

	stats := fp.Statistics.Tables["ap_invoices"]["match_status"].Categorical
	require.NotNil(t, stats)
	for _, f := range stats.TopK {
		assert.GreaterOrEqual(t, f.Count, cfg.KAnonymity, "category %q retained below k", f.Value)
	}
}

func TestConfigValidateRejectsBadBudget(t *testing.T) {
	_, err := NewExtractor(Config{EpsilonBudget: 0, KAnonymity: 5, WinsorizeHighPct: 0.99}, testLogger())
	assert.Error(t, err)

	_, err = NewExtractor(Config{EpsilonBudget: 1, KAnonymity: 0, WinsorizeHighPct: 0.99}, testLogger())
	assert.Error(t, err)
}

func TestArchiveRoundTrip(t *testing.T) {
	cfg := Config{EpsilonBudget: 5.0, KAnonymity: 5, WinsorizeLowPct: 0.01, WinsorizeHighPct: 0.99, MasterSeed: 42}
	ex, err := NewExtractor(cfg, testLogger())
	require.NoError(t, err)
	fp := ex.Extract([]Table{sampleTable()})

	dir := t.TempDir()
	path := filepath.Join(dir, "fingerprint.zip")
	require.NoError(t, Write(fp, path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, fp.Schema, loaded.Schema)
	assert.Equal(t, fp.Statistics, loaded.Statistics)
	assert.Equal(t, fp.PrivacyAudit.EpsilonBudget, loaded.PrivacyAudit.EpsilonBudget)
	assert.False(t, VersionMismatch(loaded))
}

func TestArchiveValidationFailsOnChecksumMismatch(t *testing.T) {
	cfg := Config{EpsilonBudget: 5.0, KAnonymity: 5, WinsorizeLowPct: 0.01, WinsorizeHighPct: 0.99, MasterSeed: 9}
	ex, err := NewExtractor(cfg, testLogger())
	require.NoError(t, err)
	fp := ex.Extract([]Table{sampleTable()})

	dir := t.TempDir()
	path := filepath.Join(dir, "fingerprint.zip")
	require.NoError(t, Write(fp, path))

	flipByteInMember(t, path, "statistics.json")

	_, err = Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

// flipByteInMember rewrites the archive with one byte of member's content
// flipped after the manifest's checksums were already computed, so the ZIP
// stays structurally valid (a fresh CRC32 is computed for the flipped
// content) while the SHA-256 recorded in manifest.json goes stale,
// simulating silent on-disk corruption without breaking the ZIP container
// itself.
func flipByteInMember(t *testing.T, path, member string) {
	t.Helper()

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	members := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		members[f.Name] = data
	}
	zr.Close()

	require.NotEmpty(t, members[member])
	members[member][0] ^= 0xFF

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}
