package envelope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/freitascorp/fleetmq/pkg/predicate"
	"github.com/freitascorp/fleetmq/pkg/verb"
)

func TestQuery_RoundTrip(t *testing.T) {
	q := Query{
		Seq:   3,
		Which: predicate.Equals("role", "web"),
		What:  verb.Get("addr", "name"),
		Group: "web-fleet",
	}
	raw, err := EncodeQuery(q)
	require.NoError(t, err)

	decoded, err := DecodeQuery(raw)
	require.NoError(t, err)
	require.Equal(t, q, decoded)
}

func TestQuery_NoneFilterEncodesAsNull(t *testing.T) {
	q := Query{Seq: 0, Which: predicate.None(), What: verb.Ping()}
	raw, err := EncodeQuery(q)
	require.NoError(t, err)
	require.JSONEq(t, `{"seq":0,"which":null,"what":{"get":["addr","name"]}}`, string(raw))
}

func TestResponse_RoundTrip(t *testing.T) {
	ok := Response{ID: "10.0.0.1", Seq: 2, Ok: true}
	raw, err := EncodeResponse(ok)
	require.NoError(t, err)
	decoded, err := DecodeResponse(raw)
	require.NoError(t, err)
	require.Equal(t, ok, decoded)
	require.False(t, decoded.IsError())

	failed := Response{ID: "10.0.0.1", Seq: 2, Error: "boom"}
	raw, err = EncodeResponse(failed)
	require.NoError(t, err)
	decoded, err = DecodeResponse(raw)
	require.NoError(t, err)
	require.Equal(t, failed, decoded)
	require.True(t, decoded.IsError())
}
