package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jharden0x1/steppilot/api/schemas"
	"github.com/jharden0x1/steppilot/internal/nlu"
)

// mapData backs placeholder lookups in tests.
type mapData map[string]string

func (m mapData) Resolve(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// noneClassifier never recognizes anything, exercising fallback paths.
type noneClassifier struct{}

func (noneClassifier) Classify(string) schemas.Classification {
	return schemas.Classification{}
}

// literalNoneClassifier reports no intent the other way substituted
// classifiers do: with the literal string "none".
type literalNoneClassifier struct{}

func (literalNoneClassifier) Classify(string) schemas.Classification {
	return schemas.Classification{Intent: "none"}
}

func newTestInterpreter(data mapData) *Interpreter {
	return New(nlu.NewPatternClassifier(), data)
}

func TestInterpretFill(t *testing.T) {
	it := newTestInterpreter(nil)
	action, err := it.Interpret(`Fill "secret_sauce" in "password" input`)
	require.NoError(t, err)

	assert.Equal(t, schemas.IntentFill, action.Intent)
	assert.Equal(t, "password", action.Locator)
	assert.Equal(t, "secret_sauce", action.Value)
	assert.Equal(t, schemas.ElementInput, action.ElementType)
}

func TestInterpretClick(t *testing.T) {
	it := newTestInterpreter(nil)
	action, err := it.Interpret(`the user clicks the "Sign in" button`)
	require.NoError(t, err)

	assert.Equal(t, schemas.IntentClick, action.Intent)
	assert.Equal(t, "Sign in", action.Locator)
	assert.Equal(t, schemas.ElementButton, action.ElementType)
}

func TestInterpretTypeNounInsideQuotes(t *testing.T) {
	it := newTestInterpreter(nil)
	action, err := it.Interpret(`the user clicks the "Sign in button"`)
	require.NoError(t, err)

	assert.Equal(t, "Sign in", action.Locator)
	assert.Equal(t, schemas.ElementButton, action.ElementType)
}

func TestInterpretNavigate(t *testing.T) {
	it := newTestInterpreter(nil)
	cases := []struct {
		text string
		want string
	}{
		{`the user navigates to "/login"`, "/login"},
		{`the user is on /dashboard`, "/dashboard"},
		{`the user goes to the "home page"`, "home page"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			action, err := it.Interpret(tc.text)
			require.NoError(t, err)
			assert.Equal(t, schemas.IntentNavigate, action.Intent)
			assert.Equal(t, tc.want, action.Value)
		})
	}
}

func TestInterpretPathBeatsPageEntity(t *testing.T) {
	it := newTestInterpreter(nil)
	action, err := it.Interpret(`the user opens "the settings page" at /settings?tab=2`)
	require.NoError(t, err)
	assert.Equal(t, "/settings?tab=2", action.Value)
}

func TestInterpretNavigationFallback(t *testing.T) {
	it := New(noneClassifier{}, nil)

	action, err := it.Interpret("the user is on /checkout")
	require.NoError(t, err)
	assert.Equal(t, schemas.IntentNavigate, action.Intent)
	assert.Equal(t, "/checkout", action.Value)

	action, err = it.Interpret("the user goes to somewhere nice")
	require.NoError(t, err)
	assert.Equal(t, schemas.IntentNavigate, action.Intent)
	assert.Equal(t, "unknown", action.Value)
}

func TestInterpretNoneIntentTakesFallback(t *testing.T) {
	for _, c := range []schemas.Classifier{noneClassifier{}, literalNoneClassifier{}} {
		it := New(c, nil)

		action, err := it.Interpret("the user is on /checkout")
		require.NoError(t, err)
		assert.Equal(t, schemas.IntentNavigate, action.Intent)
		assert.Equal(t, "/checkout", action.Value)

		_, err = it.Interpret("Frobnicate the whatsit")
		assert.ErrorIs(t, err, schemas.ErrUnrecognized)
	}
}

func TestInterpretUnrecognized(t *testing.T) {
	it := New(noneClassifier{}, nil)
	_, err := it.Interpret("Frobnicate the whatsit")
	assert.ErrorIs(t, err, schemas.ErrUnrecognized)
}

func TestInterpretSelect(t *testing.T) {
	it := newTestInterpreter(nil)
	action, err := it.Interpret(`the user selects "Canada" from the "Country" dropdown`)
	require.NoError(t, err)

	assert.Equal(t, schemas.IntentSelect, action.Intent)
	assert.Equal(t, "Country", action.Locator)
	assert.Equal(t, "Canada", action.Value)
	assert.Equal(t, schemas.ElementDropdown, action.ElementType)
}

func TestInterpretAssertions(t *testing.T) {
	it := newTestInterpreter(nil)

	action, err := it.Interpret(`the user should see "Welcome back"`)
	require.NoError(t, err)
	assert.Equal(t, schemas.IntentAssertText, action.Intent)
	assert.Equal(t, "Welcome back", action.Value)

	action, err = it.Interpret(`the user should be on "/dashboard"`)
	require.NoError(t, err)
	assert.Equal(t, schemas.IntentAssertURL, action.Intent)
	assert.Equal(t, "/dashboard", action.Value)

	action, err = it.Interpret(`the "Save" button should be visible`)
	require.NoError(t, err)
	assert.Equal(t, schemas.IntentAssertVisible, action.Intent)
	assert.Equal(t, "Save", action.Locator)
	assert.Equal(t, schemas.ElementButton, action.ElementType)
}

func TestInterpretPlaceholders(t *testing.T) {
	data := mapData{"admin.password": "hunter2", "admin.user": "root"}
	it := newTestInterpreter(data)

	action, err := it.Interpret(`the user fills "{admin.password}" into the "Password" field`)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", action.Value)

	_, err = it.Interpret(`the user fills "{missing.key}" into the "Password" field`)
	var dnf *schemas.DataNotFoundError
	require.ErrorAs(t, err, &dnf)
	assert.Equal(t, "missing.key", dnf.Key)
}

func TestInterpretActionsNeverCached(t *testing.T) {
	data := mapData{"otp": "111111"}
	it := newTestInterpreter(data)

	first, err := it.Interpret(`the user fills "{otp}" into the "Code" field`)
	require.NoError(t, err)
	assert.Equal(t, "111111", first.Value)

	data["otp"] = "222222"
	second, err := it.Interpret(`the user fills "{otp}" into the "Code" field`)
	require.NoError(t, err)
	assert.Equal(t, "222222", second.Value)
}
