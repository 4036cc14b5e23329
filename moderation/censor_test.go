package moderation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Censor_Masks_Banned_Words(t *testing.T) {
	req := require.New(t)
	censor, err := NewCensor([]string{"secret"}, '*')
	req.NoError(err)

	tests := []struct {
		name string
		in   string
		out  string
	}{
		{"plain hit", "this is secret stuff", "this is ****** stuff"},
		{"case insensitive", "SeCrEt", "******"},
		{"leet speak", "s3cr3t plan", "****** plan"},
		{"spaced out", "s e c r e t", "* * * * * *"},
		{"clean content", "nothing to hide", "nothing to hide"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.out, censor.Apply(tt.in))
		})
	}
}

func Test_LoadWords_Skips_Blanks_And_Comments(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "words.txt")
	req.NoError(os.WriteFile(path, []byte("# banned list\nfoo\n\n  bar  \n"), 0o600))

	words, err := LoadWords(path)
	req.NoError(err)
	req.Equal([]string{"foo", "bar"}, words)
}
