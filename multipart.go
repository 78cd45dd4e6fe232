package roll

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
)

// UploadedFile is one file field extracted from a multipart/form-data
// request body.
type UploadedFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Form returns the request's url-encoded or multipart form fields. It is
// only available after the body has been loaded (§4.3); calling it
// before raises ErrBodyNotLoaded.
func (r *Request) Form() (Values, error) {
	return r.form.get(func() (Values, error) {
		if !r.loaded {
			return nil, ErrBodyNotLoaded
		}
		form, _, err := r.parseFormBody()
		return form, err
	})
}

// Files returns the request's multipart file fields, empty for
// non-multipart bodies. Only available after the body has been loaded.
func (r *Request) Files() (map[string][]*UploadedFile, error) {
	return r.files.get(func() (map[string][]*UploadedFile, error) {
		if !r.loaded {
			return nil, ErrBodyNotLoaded
		}
		_, files, err := r.parseFormBody()
		return files, err
	})
}

func (r *Request) parseFormBody() (Values, map[string][]*UploadedFile, error) {
	contentType := r.Headers.Get("CONTENT-TYPE")
	if contentType == "" {
		return Values{}, map[string][]*UploadedFile{}, nil
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, nil, NewHttpError(400, "Invalid Content-Type")
	}
	switch mediaType {
	case "multipart/form-data":
		return parseMultipart(r.bodyBytes, params["boundary"])
	case "application/x-www-form-urlencoded":
		form, err := parseQueryString(string(r.bodyBytes))
		return form, map[string][]*UploadedFile{}, err
	default:
		return Values{}, map[string][]*UploadedFile{}, nil
	}
}

func parseMultipart(body []byte, boundary string) (Values, map[string][]*UploadedFile, error) {
	if boundary == "" {
		return nil, nil, NewHttpError(400, "Missing multipart boundary")
	}
	form := Values{}
	files := map[string][]*UploadedFile{}

	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, NewHttpError(400, "Invalid multipart body: "+err.Error())
		}
		name := part.FormName()
		content, err := io.ReadAll(part)
		if err != nil {
			return nil, nil, NewHttpError(400, "Invalid multipart body: "+err.Error())
		}
		if filename := part.FileName(); filename != "" {
			files[name] = append(files[name], &UploadedFile{
				Filename:    filename,
				ContentType: part.Header.Get("Content-Type"),
				Content:     content,
			})
		} else {
			form[name] = append(form[name], string(content))
		}
	}
	return form, files, nil
}
