package envelope

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_HappyPath(t *testing.T) {
	turn, err := Parse(`{"originationNumber":"+15551234567","messageBody":"What is the return policy?"}`)
	require.NoError(t, err)
	require.Equal(t, "+15551234567", turn.Sender)
	require.Equal(t, "What is the return policy?", turn.Body)
	require.False(t, turn.ReceivedAt.IsZero())
}

func TestParse_IgnoresExtraFields(t *testing.T) {
	turn, err := Parse(`{"originationNumber":"+15551234567","messageBody":"hi","destinationNumber":"+15550000000","messageKeyword":"KEYWORD"}`)
	require.NoError(t, err)
	require.Equal(t, "hi", turn.Body)
}

func TestParse_NotJSON(t *testing.T) {
	_, err := Parse(`not-json`)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParse_MissingSender(t *testing.T) {
	_, err := Parse(`{"messageBody":"hello"}`)
	require.ErrorIs(t, err, ErrMalformed)
	require.Contains(t, err.Error(), "originationNumber")
}

func TestParse_MissingBody(t *testing.T) {
	_, err := Parse(`{"originationNumber":"+15551234567"}`)
	require.ErrorIs(t, err, ErrMalformed)
	require.Contains(t, err.Error(), "messageBody")
}

func TestParse_BlankFields(t *testing.T) {
	_, err := Parse(`{"originationNumber":"  ","messageBody":"hello"}`)
	require.ErrorIs(t, err, ErrMalformed)
}
