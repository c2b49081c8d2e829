package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAutocompleteMainOnlyAnswersCompletionRequests(t *testing.T) {
	t.Setenv("COMP_LINE", "")
	assert.False(t, AutocompleteMain(Commands))

	t.Setenv("COMP_LINE", "weed server -ram.")
	t.Setenv("COMP_POINT", "17")
	assert.True(t, AutocompleteMain(Commands))
}

func TestRunAutocompleteScripts(t *testing.T) {
	assert.True(t, runAutocomplete(cmdAutocomplete, []string{"bash"}))
	assert.True(t, runAutocomplete(cmdAutocomplete, []string{"zsh"}))
	assert.False(t, runAutocomplete(cmdAutocomplete, []string{"tcsh"}))
	assert.False(t, runAutocomplete(cmdAutocomplete, []string{"bash", "zsh"}))
}
