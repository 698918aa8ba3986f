package http

// Part is one named unit of binary data in a multipart body. A Part is owned
// by the request that holds it and must not be mutated once the request is
// enqueued.
type Part struct {
	filename string
	data     []byte
	mimeType string
}

func NewPart(filename string, data []byte, mimeType string) *Part {
	return &Part{filename: filename, data: data, mimeType: mimeType}
}

func (p *Part) Filename() string { return p.filename }
func (p *Part) Data() []byte     { return p.data }
func (p *Part) MimeType() string { return p.mimeType }

func (p *Part) SetFilename(filename string) { p.filename = filename }
func (p *Part) SetData(data []byte)         { p.data = data }
func (p *Part) SetMimeType(mimeType string) { p.mimeType = mimeType }

// Size returns the length of the part's data in bytes.
func (p *Part) Size() int { return len(p.data) }
