package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoardPNG_RequiresURLAndOutput(t *testing.T) {
	assert.EqualError(t, BoardPNG(context.Background(), Options{OutputPath: "x.png"}), "capture: URL is required")
	assert.EqualError(t, BoardPNG(context.Background(), Options{URL: "http://127.0.0.1:8080/"}), "capture: OutputPath is required")
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{URL: "http://127.0.0.1:8080/", OutputPath: "out.png"}
	assert.NoError(t, o.withDefaults())
	assert.Equal(t, DefaultWidth, o.Width)
	assert.Equal(t, DefaultHeight, o.Height)
	assert.Equal(t, DefaultTimeout, o.Timeout)
}
