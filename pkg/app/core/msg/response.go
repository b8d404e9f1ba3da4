package msg

// Attribute is a key/value pair describing what a call did.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response is the result of a committed call. Messages are dispatched by the
// caller after commit, in order.
type Response struct {
	Messages []CosmosMsg `json:"messages"`
	Log      []Attribute `json:"log"`
}

// Attr appends a log attribute.
func (r *Response) Attr(key, value string) {
	r.Log = append(r.Log, Attribute{Key: key, Value: value})
}
