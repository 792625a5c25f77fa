package session

import "fmt"

// Remote names travel in the server's charset.  With Options.Charset nil
// they are sent and shown as UTF-8 unchanged.

func (s *Session) remoteName(name string) (string, error) {
	if s.opts.Charset == nil || name == "" {
		return name, nil
	}
	enc, err := s.opts.Charset.NewEncoder().String(name)
	if err != nil {
		return "", fmt.Errorf("remote name %q: %w", name, err)
	}
	return enc, nil
}

func (s *Session) localText(b []byte) string {
	if s.opts.Charset == nil {
		return string(b)
	}
	dec, err := s.opts.Charset.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(dec)
}
