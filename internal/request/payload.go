package request

import (
	"net/url"
	"strings"
)

// Param is one query parameter of a hit. Order is preserved on the wire.
type Param struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

// Payload is the wire form of a hit: an endpoint plus ordered parameters.
// Method is left empty until the transport picks GET or POST by size.
type Payload struct {
	Method   string
	Endpoint string
	Params   []Param
}

// Set replaces the first parameter named key, or appends it.
func (p *Payload) Set(key, value string) {
	for i := range p.Params {
		if p.Params[i].Key == key {
			p.Params[i].Value = value
			return
		}
	}
	p.Params = append(p.Params, Param{Key: key, Value: value})
}

func (p Payload) Get(key string) (string, bool) {
	for _, param := range p.Params {
		if param.Key == key {
			return param.Value, true
		}
	}
	return "", false
}

func (p Payload) Clone() Payload {
	out := p
	out.Params = make([]Param, len(p.Params))
	copy(out.Params, p.Params)
	return out
}

// Encode renders the parameters as an application/x-www-form-urlencoded
// string, keeping insertion order.
func (p Payload) Encode() string {
	var sb strings.Builder
	for i, param := range p.Params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(param.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(param.Value))
	}
	return sb.String()
}
