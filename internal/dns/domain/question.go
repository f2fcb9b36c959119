package domain

// DNSQuestion is the decoded question name of one DNS packet together with the
// outcome of decoding it. It is derived per packet and never cached.
type DNSQuestion struct {
	Name string
	Err  error
}

// OK reports whether the name decoded successfully.
func (q DNSQuestion) OK() bool { return q.Err == nil }
