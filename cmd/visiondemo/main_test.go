package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/vision"
)

// execute runs the root command with args in a clean working directory.
func execute(t *testing.T, args ...string) string {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Cleanup(func() { vision.SetLogger(nil) })

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), "stderr: %s", errOut.String())
	return out.String()
}

// writePNG writes a cols x rows diagonal gradient.
func writePNG(t *testing.T, cols, rows int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := uint8((x + y) * 255 / (cols + rows - 2))
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: 255 - v, B: v / 2, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "in.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()
	assert.Equal(t, "visiondemo", cmd.Use)
	assert.NotEmpty(t, cmd.Long)

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
		assert.NotEmpty(t, c.Short, c.Name())
		assert.NotEmpty(t, c.Example, c.Name())
	}
	assert.True(t, names["run"])
	assert.True(t, names["plan"])

	for _, f := range []string{"config", "device", "fusion", "border", "workers", "group-cols"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(f), f)
	}
}

func TestRunWritesImage(t *testing.T) {
	in := writePNG(t, 24, 16)

	for _, name := range pipelineNames() {
		t.Run(name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), name+".png")
			stdout := execute(t, "run", "--device", "cpu", "--pipeline", name, "-o", out, in)

			assert.Contains(t, stdout, "on cpu (fusion auto, border clamp)")
			assert.Contains(t, stdout, "written")

			got, err := decodeFile(out)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 24, 16), got.Bounds())
		})
	}
}

func TestRunReportsFusion(t *testing.T) {
	in := writePNG(t, 16, 16)
	out := filepath.Join(t.TempDir(), "edge.bmp")

	stdout := execute(t, "run", "--device", "cpu", "--fusion", "none", "--border", "mirror",
		"-p", "edge", "-o", out, in)

	assert.Contains(t, stdout, "Edge on cpu (fusion none, border mirror)")
	// gray, convolve and abs per gradient, then add
	assert.Contains(t, stdout, "kernels        7")
	assert.Contains(t, stdout, "intermediates  6")
}

func TestRunRejectsUnknownPipeline(t *testing.T) {
	in := writePNG(t, 4, 4)
	t.Chdir(t.TempDir())
	t.Cleanup(func() { vision.SetLogger(nil) })

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--device", "cpu", "-p", "sepia", in})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown pipeline")
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(func() { vision.SetLogger(nil) })

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"plan", "--fusion", "eager"})
	require.Error(t, cmd.Execute())
}

func TestPlanBlankImage(t *testing.T) {
	stdout := execute(t, "plan", "--device", "cpu", "-p", "edge", "--extent", "16x8")
	assert.Contains(t, stdout, "Edge: 1 kernels")
	assert.Regexp(t, `add\s+f32x1\s+16x8`, stdout)

	stdout = execute(t, "plan", "-p", "edge", "--fusion", "none")
	assert.Contains(t, stdout, "Edge: 7 kernels")
}

func TestPlanConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("fusion: none\n"), 0600))

	stdout := execute(t, "plan", "--config", cfg, "-p", "open")
	// gray, erode, dilate
	assert.Contains(t, stdout, "Open: 3 kernels")
}

func TestParseExtent(t *testing.T) {
	tests := []struct {
		in      string
		want    vision.Dims
		wantErr bool
	}{
		{"64x48", vision.Dims{Cols: 64, Rows: 48}, false},
		{"3X2", vision.Dims{Cols: 3, Rows: 2}, false},
		{"64", vision.Dims{}, true},
		{"ax4", vision.Dims{}, true},
		{"4x0", vision.Dims{}, true},
	}
	for _, tt := range tests {
		got, err := parseExtent(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestEncoderFor(t *testing.T) {
	for _, ok := range []string{"a.png", "a.JPG", "a.jpeg", "a.bmp", "a.tif", "a.tiff"} {
		_, err := encoderFor(ok)
		assert.NoError(t, err, ok)
	}
	_, err := encoderFor("a.gif")
	assert.Error(t, err)
}

func TestEncodeDecodeFormats(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 5, 3))
	img.SetNRGBA(2, 1, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	for _, ext := range []string{".png", ".bmp", ".tiff"} {
		path := filepath.Join(t.TempDir(), "img"+ext)
		require.NoError(t, encodeFile(path, img), ext)
		got, err := decodeFile(path)
		require.NoError(t, err, ext)
		assert.Equal(t, img.Bounds(), got.Bounds(), ext)

		r, g, b, _ := got.At(2, 1).RGBA()
		assert.Equal(t, []uint32{200, 100, 50}, []uint32{r >> 8, g >> 8, b >> 8}, ext)
	}
}
