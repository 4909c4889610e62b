// Package connstr provides pure functions for building MongoDB connection strings.
package connstr

import "strings"

const schemeSep = "://"

// Join merges an ordered list of address fragments into one connection string
// of the form scheme://[user:pass@]host1:port1,host2:port2,.../database.
//
// The first fragment contributes the scheme, credentials and first host.
// Middle fragments contribute only their host:port span. The last fragment
// contributes only its path suffix, from the first "/" or "?" after its host.
func Join(fragments []string) string {
	cleaned := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f = strings.TrimSpace(f); f != "" {
			cleaned = append(cleaned, f)
		}
	}

	switch len(cleaned) {
	case 0:
		return ""
	case 1:
		return cleaned[0]
	}

	var b strings.Builder
	b.WriteString(head(cleaned[0]))
	for _, f := range cleaned[1 : len(cleaned)-1] {
		b.WriteByte(',')
		b.WriteString(hostPort(f))
	}
	b.WriteString(suffix(cleaned[len(cleaned)-1]))
	return b.String()
}

// head keeps the fragment up to (not including) the path separator after the host.
func head(f string) string {
	offset := 0
	if i := strings.Index(f, schemeSep); i >= 0 {
		offset = i + len(schemeSep)
	}
	if j := strings.IndexAny(f[offset:], "/?"); j >= 0 {
		return f[:offset+j]
	}
	return f
}

// hostPort keeps only the host:port span of a fragment.
func hostPort(f string) string {
	s := tail(f)
	if j := strings.IndexAny(s, "/?"); j >= 0 {
		return s[:j]
	}
	return s
}

// suffix keeps the path and query after the host, or "" when there is none.
func suffix(f string) string {
	s := tail(f)
	if j := strings.IndexAny(s, "/?"); j >= 0 {
		return s[j:]
	}
	return ""
}

// tail drops the scheme and anything up to the last "@".
func tail(f string) string {
	if i := strings.Index(f, schemeSep); i >= 0 {
		f = f[i+len(schemeSep):]
	}
	if i := strings.LastIndex(f, "@"); i >= 0 {
		f = f[i+1:]
	}
	return f
}

// Redact masks the password portion of a connection string for logging.
func Redact(uri string) string {
	offset := 0
	if i := strings.Index(uri, schemeSep); i >= 0 {
		offset = i + len(schemeSep)
	}
	at := strings.LastIndex(uri, "@")
	if at < offset {
		return uri
	}
	creds := uri[offset:at]
	colon := strings.Index(creds, ":")
	if colon < 0 {
		return uri
	}
	return uri[:offset] + creds[:colon] + ":xxxxx" + uri[at:]
}
