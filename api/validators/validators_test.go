package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type couponBody struct {
	Code string `json:"code" validate:"required,max=8"`
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "SAVE10", SanitizeString("  SAVE10\n", 0))
	assert.Equal(t, "SAVE10", SanitizeString("SA\x00VE\x0710", 0))
	assert.Equal(t, "héll", SanitizeString("héllo", 4))
	assert.Equal(t, "", SanitizeString(" \t ", 5))
}

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		field   string
	}{
		{name: "valid", body: `{"code":"SAVE10"}`},
		{name: "empty", body: "", wantErr: true},
		{name: "unknown field", body: `{"code":"A","extra":1}`, wantErr: true},
		{name: "malformed", body: `{"code":`, wantErr: true},
		{name: "missing required", body: `{}`, wantErr: true, field: "code"},
		{name: "too long", body: `{"code":"WAYTOOLONG"}`, wantErr: true, field: "code"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dest couponBody
			err := DecodeJSONBody(req, &dest)
			if !tc.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "SAVE10", dest.Code)
				return
			}
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
			if tc.field != "" {
				details, ok := pkgerrors.As(err).Details().(map[string]string)
				require.True(t, ok)
				assert.Contains(t, details, tc.field)
			}
		})
	}
}

func TestDecodeOptionalJSONBodyAcceptsEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	dest := couponBody{Code: "KEEP"}
	require.NoError(t, DecodeOptionalJSONBody(req, &dest))
	assert.Equal(t, "KEEP", dest.Code)
}

func TestParseQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=10&unresolved=true&bad=x", nil)

	limit, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, limit)

	def, err := ParseQueryInt(req, "missing", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, def)

	_, err = ParseQueryInt(req, "bad", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	unresolved, err := ParseQueryBool(req, "unresolved")
	require.NoError(t, err)
	require.NotNil(t, unresolved)
	assert.True(t, *unresolved)

	_, err = ParseQueryBool(req, "bad")
	assert.Error(t, err)
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	var got uuid.UUID
	var gotErr error

	r := chi.NewRouter()
	r.Get("/checkout/{checkoutId}", func(w http.ResponseWriter, req *http.Request) {
		got, gotErr = ParseUUIDParam(req, "checkoutId")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/checkout/"+id.String(), nil))
	require.NoError(t, gotErr)
	assert.Equal(t, id, got)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/checkout/not-a-uuid", nil))
	assert.True(t, pkgerrors.IsCode(gotErr, pkgerrors.CodeValidation))
}
