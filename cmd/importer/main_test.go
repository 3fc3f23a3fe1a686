package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDefinition(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "definition.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestValidateCommand(t *testing.T) {
	valid := writeDefinition(t, `
code: voc1
title: Vocational interests
sections:
  - title: General
    questions:
      - {code: likes_math, text: Do you like math?, type: boolean, required: true}
`)
	unknownKey := writeDefinition(t, "code: voc1\ntitle: T\ncolour: red\n")
	badCode := writeDefinition(t, "code: '!!'\ntitle: T\n")

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"valid definition", []string{"importer", "validate", "--file", valid}, false},
		{"unknown key", []string{"importer", "validate", "--file", unknownKey}, true},
		{"invalid code", []string{"importer", "validate", "-f", badCode}, true},
		{"missing file", []string{"importer", "validate", "--file", filepath.Join(t.TempDir(), "nope.yaml")}, true},
		{"file flag required", []string{"importer", "validate"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newApp().Run(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReadDefinition(t *testing.T) {
	path := writeDefinition(t, `
code: VOC2
title: Second
sections:
  - title: A
    questions:
      - {code: q1, text: One, type: text}
      - {code: q2, text: Two, type: single_choice, options: [{value: a, label: A}]}
  - title: B
    questions:
      - {code: q3, text: Three, type: number}
`)

	def, err := readDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, "VOC2", def.Code)
	assert.Len(t, def.Sections, 2)
	assert.Equal(t, 3, def.QuestionCount())
}
