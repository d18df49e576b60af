package domain

import (
	"strconv"
	"time"
)

// Expiry describes how long a hosting backend keeps a file.
// A zero TTL means the file is kept permanently.
type Expiry struct {
	TTL time.Duration
}

// Permanent is the expiry of backends that never delete files.
var Permanent = Expiry{}

// ExpiresAfter returns an expiry of the given duration.
func ExpiresAfter(d time.Duration) Expiry {
	return Expiry{TTL: d}
}

// IsPermanent reports whether files are kept forever.
func (e Expiry) IsPermanent() bool {
	return e.TTL <= 0
}

func (e Expiry) String() string {
	if e.IsPermanent() {
		return "permanent"
	}
	const day = 24 * time.Hour
	if e.TTL%day == 0 {
		return "expires in " + plural(int(e.TTL/day), "day")
	}
	hours := int(e.TTL / time.Hour)
	if hours < 1 {
		hours = 1
	}
	return "expires in " + plural(hours, "hour")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

// UploadAttempt records one backend considered by the upload chain.
type UploadAttempt struct {
	Backend string
	Ceiling int64
	Expiry  Expiry
	Link    string
	Skipped bool
	Err     error
}

// Succeeded reports whether the attempt produced a link.
func (a UploadAttempt) Succeeded() bool {
	return a.Link != ""
}
