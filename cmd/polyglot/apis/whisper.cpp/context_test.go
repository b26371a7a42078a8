package whisper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mattermost/polyglot/cmd/polyglot/wav"

	"github.com/stretchr/testify/require"
)

func getModelsDir() string {
	if dir := os.Getenv("MODELS_DIR"); dir != "" {
		return dir
	}
	return "../../../../models"
}

func getModelPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(getModelsDir(), "ggml-tiny.bin")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("model file not available: %s", path)
	}
	return path
}

func TestConfigIsValid(t *testing.T) {
	tcs := []struct {
		name string
		cfg  Config
		err  string
	}{
		{
			name: "empty config",
			err:  "invalid empty config",
		},
		{
			name: "missing model file",
			err:  "invalid ModelFile: should not be empty",
			cfg: Config{
				NumThreads: 1,
			},
		},
		{
			name: "non existent model file",
			err:  "invalid ModelFile: failed to stat model file: stat /tmp/invalid.ggml: no such file or directory",
			cfg: Config{
				ModelFile: "/tmp/invalid.ggml",
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.IsValid()
			if tc.err != "" {
				require.EqualError(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewContext(t *testing.T) {
	t.Run("missing model file", func(t *testing.T) {
		ctx, err := NewContext(Config{})
		require.Error(t, err)
		require.Nil(t, ctx)
	})

	t.Run("destroy", func(t *testing.T) {
		ctx, err := NewContext(Config{
			NumThreads: 1,
			ModelFile:  getModelPath(t),
		})
		require.NoError(t, err)
		require.NotNil(t, ctx)

		err = ctx.Destroy()
		require.NoError(t, err)

		err = ctx.Destroy()
		require.EqualError(t, err, "context is not initialized")
	})
}

func TestFileTranscriberConfigIsValid(t *testing.T) {
	cfg := FileTranscriberConfig{
		Context: Config{
			NumThreads: 1,
			ModelFile:  getModelPath(t),
		},
		VADModelFile: "/tmp/invalid.onnx",
	}
	require.EqualError(t, cfg.IsValid(), "invalid VADModelFile: failed to stat model file: stat /tmp/invalid.onnx: no such file or directory")

	cfg.VADModelFile = ""
	require.NoError(t, cfg.IsValid())
}

func TestFileTranscriber(t *testing.T) {
	tr, err := NewFileTranscriber(FileTranscriberConfig{
		Context: Config{
			NumThreads: 1,
			ModelFile:  getModelPath(t),
		},
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, tr.Destroy())
	}()

	t.Run("missing file", func(t *testing.T) {
		segs, _, err := tr.Transcribe("/tmp/missing.wav")
		require.Error(t, err)
		require.Nil(t, segs)
	})

	t.Run("silence", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "silence.wav")
		require.NoError(t, os.WriteFile(path, wav.Encode(make([]float32, 2*wav.SampleRate)), 0600))

		segs, _, err := tr.Transcribe(path)
		require.NoError(t, err)
		defer segs.Close()

		for {
			s, ok, err := segs.Next()
			require.NoError(t, err)
			if !ok {
				break
			}
			require.LessOrEqual(t, s.Start, s.End)
			require.LessOrEqual(t, s.End, 2.0)
		}
	})
}
