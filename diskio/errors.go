package diskio

import "errors"

// ErrIO wraps every I/O failure surfaced by the disk manager. 
// §7, I/O failures propagate as a false/None completion, never a panic;
// callers use errors.Is(err, ErrIO) to recognize the fatal-to-the-caller
// category without caring about the underlying os.PathError.
var ErrIO = errors.New("diskio: i/o failure")
