package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actioner/internal/label"
)

const sampleManifest = `
entries:
  - config_type: ActionRule
    name: EnqueueForReview
    fields:
      must_have_labels:
        - {K: Classification, V: true_positive}
      must_not_have_labels:
        - {K: BankIDClassification, V: "303636684709969"}
  - config_type: Action
    name: EnqueueForReview
    fields:
      priority: 2
      superseded_by:
        - {K: Action, V: EnqueueMiniCastleForReview}
  - config_type: ActionPerformer
    name: EnqueueForReview
    subtype: WebhookPostActionPerformer
    fields:
      url: https://review.example.com/hook
  - config_type: ReactingPolicy
    name: "*"
    fields:
      enabled: false
`

func TestLoadManifest(t *testing.T) {
	entries, err := LoadManifest(strings.NewReader(sampleManifest))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	snap := NewSnapshot(entries)
	require.Empty(t, snap.Skipped())

	rules := snap.ActionRules()
	require.Len(t, rules, 1)
	assert.Equal(t, label.Action("EnqueueForReview"), rules[0].ActionLabel)
	assert.Equal(t, []label.Label{label.Classification("true_positive")}, rules[0].MustHaveLabels)

	a, ok := snap.Action(label.Action("EnqueueForReview"))
	require.True(t, ok)
	assert.Equal(t, 2, a.Priority)
	assert.True(t, a.IsSupersededBy(label.Action("EnqueueMiniCastleForReview")))

	p, ok := snap.Performer("EnqueueForReview")
	require.True(t, ok)
	assert.Equal(t, "WebhookPostActionPerformer", p.Subtype)

	enabled, ok := snap.ReactingEnabled("*")
	require.True(t, ok)
	assert.False(t, enabled)
}

func TestLoadManifestRejectsBadEntries(t *testing.T) {
	tests := map[string]string{
		"unknown type": "entries:\n  - {config_type: Banana, name: x}\n",
		"no name":      "entries:\n  - {config_type: Action, fields: {priority: 1}}\n",
		"bad label":    "entries:\n  - {config_type: ActionRule, name: x, fields: {must_have_labels: [{K: Classification, V: \"\"}]}}\n",
		"not yaml":     "entries: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadManifest(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadManifestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o600))

	entries, err := LoadManifestFile(path)
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	_, err = LoadManifestFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
