package roll

import "encoding/json"

// JSON decodes the loaded body as UTF-8 JSON into a generic value,
// caching the decoded result after the first successful call. Decoding
// errors raise HttpError(400); calling JSON before the body is loaded
// returns ErrBodyNotLoaded.
func (r *Request) JSON() (any, error) {
	return r.json.get(func() (any, error) {
		if !r.loaded {
			return nil, ErrBodyNotLoaded
		}
		var v any
		if err := json.Unmarshal(r.bodyBytes, &v); err != nil {
			return nil, NewHttpError(400, "Invalid JSON body: "+err.Error())
		}
		return v, nil
	})
}

// DecodeJSON is a typed convenience wrapper around JSON for callers who
// know the target shape; unlike JSON it is not cached, since the
// destination type varies per caller.
func (r *Request) DecodeJSON(dst any) error {
	if !r.loaded {
		return ErrBodyNotLoaded
	}
	if err := json.Unmarshal(r.bodyBytes, dst); err != nil {
		return NewHttpError(400, "Invalid JSON body: "+err.Error())
	}
	return nil
}
