package preset

import "errors"

var ErrUnknownPreset = errors.New("preset: unknown preset")
