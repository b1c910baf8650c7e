package answer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func choice(ids ...string) model.AnswerValue { return model.AnswerValue{ChoiceIDs: ids} }

func TestSynchronizer_EditIsOptimistic(t *testing.T) {
	s := NewSynchronizer()
	q := uuid.New()

	req, err := s.Edit(q, choice("B"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), req.Seq)

	rec, ok := s.Get(q)
	require.True(t, ok)
	assert.Equal(t, choice("B"), rec.Value)
	assert.False(t, rec.Confirmed)

	assert.Equal(t, AckApplied, s.Ack(q, req.Seq))
	rec, _ = s.Get(q)
	assert.True(t, rec.Confirmed)
}

func TestSynchronizer_StaleAckDoesNotConfirmNewerEdit(t *testing.T) {
	s := NewSynchronizer()
	q := uuid.New()

	first, _ := s.Edit(q, choice("A"))
	second, _ := s.Edit(q, choice("C"))
	require.Greater(t, second.Seq, first.Seq)

	// The newer edit's ack overtakes the older one.
	assert.Equal(t, AckApplied, s.Ack(q, second.Seq))
	assert.Equal(t, AckStale, s.Ack(q, first.Seq))

	rec, _ := s.Get(q)
	assert.Equal(t, choice("C"), rec.Value)
	assert.True(t, rec.Confirmed)
	assert.Equal(t, second.Seq, rec.AckedSeq)
}

func TestSynchronizer_OlderAckLeavesNewerEditUnconfirmed(t *testing.T) {
	s := NewSynchronizer()
	q := uuid.New()

	first, _ := s.Edit(q, choice("A"))
	s.Edit(q, choice("D"))

	assert.Equal(t, AckStale, s.Ack(q, first.Seq))
	rec, _ := s.Get(q)
	assert.False(t, rec.Confirmed)
	assert.Equal(t, choice("D"), rec.Value)
	assert.Len(t, s.Unconfirmed(), 1)
}

func TestSynchronizer_FailureKeepsLocalValue(t *testing.T) {
	s := NewSynchronizer()
	q := uuid.New()

	req, _ := s.Edit(q, choice("B"))
	assert.True(t, s.Fail(q, req.Seq))

	rec, _ := s.Get(q)
	assert.Equal(t, choice("B"), rec.Value)
	assert.False(t, rec.Confirmed)

	// The next edit is persisted as usual.
	next, err := s.Edit(q, choice("C"))
	require.NoError(t, err)
	assert.Equal(t, choice("C"), next.Value)
	assert.Equal(t, uint64(2), next.Seq)
}

func TestSynchronizer_Disabled(t *testing.T) {
	s := NewSynchronizer()
	q := uuid.New()
	s.Disable()

	_, err := s.Edit(q, model.AnswerValue{Text: "jawaban"})
	assert.ErrorIs(t, err, ErrPersistenceDisabled)

	rec, ok := s.Get(q)
	require.True(t, ok)
	assert.Equal(t, "jawaban", rec.Value.Text)
}

func TestSynchronizer_RehydrateKeepsLocalEdits(t *testing.T) {
	s := NewSynchronizer()
	q1, q2, q3 := uuid.New(), uuid.New(), uuid.New()

	s.Edit(q1, choice("A"))
	s.Rehydrate([]model.PersistedAnswer{
		{QuestionID: q1, AnswerValue: choice("B")},
		{QuestionID: q2, AnswerValue: choice("C")},
		{QuestionID: q3},
	})

	rec, _ := s.Get(q1)
	assert.Equal(t, choice("A"), rec.Value)

	want := map[uuid.UUID]bool{q1: true, q2: true, q3: false}
	if diff := cmp.Diff(want, s.Answered()); diff != "" {
		t.Errorf("Answered() mismatch (-want +got):\n%s", diff)
	}
}

func TestSynchronizer_EditDoesNotAliasCallerSlice(t *testing.T) {
	s := NewSynchronizer()
	q := uuid.New()

	ids := []string{"A", "B"}
	s.Edit(q, model.AnswerValue{ChoiceIDs: ids})
	ids[0] = "Z"

	rec, _ := s.Get(q)
	assert.Equal(t, []string{"A", "B"}, rec.Value.ChoiceIDs)
}

func TestSynchronizer_AckUnknownQuestion(t *testing.T) {
	s := NewSynchronizer()
	assert.Equal(t, AckUnknown, s.Ack(uuid.New(), 1))
	assert.False(t, s.Fail(uuid.New(), 1))
}
