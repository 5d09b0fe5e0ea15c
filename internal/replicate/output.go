package replicate

import (
	"encoding/json"
	"fmt"
)

// Output models the prediction output field, which the remote API returns
// either as a single URL string or as an array of URL strings depending on
// the model. Decoding tries each shape in order.
type Output struct {
	urls []string
}

// URLs returns the decoded output URLs, preserving order.
func (o *Output) URLs() []string {
	if o == nil {
		return nil
	}
	return o.urls
}

func (o *Output) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			o.urls = []string{single}
		}
		return nil
	}
	var multiple []string
	if err := json.Unmarshal(data, &multiple); err == nil {
		o.urls = multiple
		return nil
	}
	return fmt.Errorf("output is neither a string nor an array of strings")
}

func (o Output) MarshalJSON() ([]byte, error) {
	if len(o.urls) == 1 {
		return json.Marshal(o.urls[0])
	}
	return json.Marshal(o.urls)
}
