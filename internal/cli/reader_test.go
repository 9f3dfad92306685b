package cli

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonBlockingReader_ReadLine(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedValue string
		expectError   error
	}{
		{
			name:          "successful read",
			input:         "test input\n",
			expectedValue: "test input",
		},
		{
			name:          "read with extra whitespace",
			input:         "  test input  \n",
			expectedValue: "test input",
		},
		{
			name:          "empty line",
			input:         "\n",
			expectedValue: "",
		},
		{
			name:          "unterminated last line",
			input:         "q",
			expectedValue: "q",
		},
		{
			name:        "no input",
			input:       "",
			expectError: io.EOF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nbr := NewNonBlockingReader(strings.NewReader(tt.input))

			result, err := nbr.ReadLine(context.Background())
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedValue, result)
		})
	}
}

func TestNonBlockingReader_Sequential(t *testing.T) {
	nbr := NewNonBlockingReader(strings.NewReader("c\npinch\n\n"))
	ctx := context.Background()

	for _, want := range []string{"c", "pinch", ""} {
		got, err := nbr.ReadLine(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := nbr.ReadLine(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestNonBlockingReader_CanceledReadKeepsLine(t *testing.T) {
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()
	nbr := NewNonBlockingReader(pr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := nbr.ReadLine(ctx)
	assert.ErrorIs(t, err, ErrInputCancelled)

	go func() { _, _ = pw.Write([]byte("s\n")) }()

	got, err := nbr.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s", got)
}

func TestNewNonBlockingReader_NilPanics(t *testing.T) {
	assert.Panics(t, func() { NewNonBlockingReader(nil) })
}
