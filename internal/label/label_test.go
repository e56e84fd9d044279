package label

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelEquality(t *testing.T) {
	assert.True(t, New("K", "V").Equal(New("K", "V")))
	assert.False(t, New("K", "V").Equal(New("K", "X")))
	assert.False(t, New("K", "V").Equal(New("J", "V")))

	l := New("K", "V")
	assert.True(t, New("K", "V").Equal(&l))
	assert.False(t, New("K", "V").Equal((*Label)(nil)))
}

func TestLabelNeverEqualsNonLabel(t *testing.T) {
	l := New("K", "V")
	for _, other := range []any{nil, "K:V", 42, map[string]string{"K": "K", "V": "V"}, struct{}{}} {
		assert.False(t, l.Equal(other), "%T", other)
	}
}

func TestKindsFixKey(t *testing.T) {
	tests := []struct {
		got  Label
		kind Kind
	}{
		{Classification("12345"), KindClassification},
		{BankSourceClassification("te"), KindBankSourceClassification},
		{BankIDClassification("bank 4"), KindBankIDClassification},
		{BankedContentIDClassification("2862392437204724"), KindBankedContentIDClassification},
		{Action("EnqueueForReview").Label(), KindAction},
		{ThreatExchangeReaction("SAW_THIS_TOO").Label(), KindThreatExchangeReaction},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, string(tt.kind), tt.got.Key)
			assert.Equal(t, tt.kind, tt.got.Kind())
			assert.True(t, tt.got.Kind().IsKnown())
		})
	}

	assert.False(t, New("Collaboration", "1").Kind().IsKnown())
}

func TestActionLabelEqualsPlainLabel(t *testing.T) {
	a := Action("EnqueueForReview")
	assert.True(t, a.Equal(New("Action", "EnqueueForReview")))
	assert.True(t, New("Action", "EnqueueForReview").Equal(a))
	assert.False(t, a.Equal(ThreatExchangeReaction("EnqueueForReview")))
	assert.True(t, a == Action("EnqueueForReview"))
}

func TestLabelMapForm(t *testing.T) {
	l := Classification("12345")
	m := l.ToMap()
	assert.Equal(t, map[string]string{"K": "Classification", "V": "12345"}, m)

	back, err := FromMap(m)
	require.NoError(t, err)
	assert.Equal(t, l, back)

	_, err = FromMap(map[string]string{"K": "Classification"})
	assert.Error(t, err)
}

func TestLabelJSON(t *testing.T) {
	data, err := json.Marshal(BankIDClassification("bank 4"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"K":"BankIDClassification","V":"bank 4"}`, string(data))

	var l Label
	require.NoError(t, json.Unmarshal(data, &l))
	assert.Equal(t, BankIDClassification("bank 4"), l)

	assert.Error(t, json.Unmarshal([]byte(`{"V":"x"}`), &l))

	data, err = json.Marshal(Action("Notify"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"K":"Action","V":"Notify"}`, string(data))

	var a ActionLabel
	require.NoError(t, json.Unmarshal(data, &a))
	assert.Equal(t, Action("Notify"), a)
}

func TestOutcomeLabelsRejectForeignKeys(t *testing.T) {
	var a ActionLabel
	assert.Error(t, json.Unmarshal([]byte(`{"K":"Classification","V":"x"}`), &a))
	assert.Equal(t, ActionLabel{}, a)

	var r ReactionLabel
	assert.Error(t, json.Unmarshal([]byte(`{"K":"Action","V":"SAW_THIS_TOO"}`), &r))
	assert.Equal(t, ReactionLabel{}, r)

	require.NoError(t, json.Unmarshal([]byte(`{"K":"ThreatExchangeReaction","V":"SAW_THIS_TOO"}`), &r))
	assert.Equal(t, ThreatExchangeReaction(ReactionSawThisToo), r)
}

func TestLabelValidate(t *testing.T) {
	assert.NoError(t, Classification("x").Validate())
	assert.Error(t, New("", "x").Validate())
	assert.Error(t, New("Classification", "").Validate())
}

func TestSet(t *testing.T) {
	s := NewSet(Classification("a"), Classification("b"), Classification("a"))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []Label{Classification("a"), Classification("b")}, s.Labels())

	assert.True(t, s.ContainsAll(nil))
	assert.True(t, s.ContainsAll([]Label{Classification("b")}))
	assert.False(t, s.ContainsAll([]Label{Classification("b"), Classification("c")}))
	assert.False(t, s.ContainsAny(nil))
	assert.True(t, s.ContainsAny([]Label{Classification("c"), Classification("a")}))
	assert.False(t, s.Add(Classification("b")))
}
