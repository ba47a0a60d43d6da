package models

import "encoding/json"

// ParseID reads an id the backend sends either as a string or as a number.
func ParseID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (u *User) UnmarshalJSON(data []byte) error {
	type Alias User
	aux := struct {
		*Alias
		ID json.RawMessage `json:"id"`
	}{Alias: (*Alias)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.ID != nil {
		u.ID = ParseID(aux.ID)
	}
	return nil
}

func (u *UserContext) UnmarshalJSON(data []byte) error {
	type Alias UserContext
	aux := struct {
		*Alias
		ID json.RawMessage `json:"id"`
	}{Alias: (*Alias)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.ID != nil {
		u.ID = ParseID(aux.ID)
	}
	return nil
}

// UnmarshalJSON keeps the password, which the promoted User decoder would
// drop.
func (d *RegisterDto) UnmarshalJSON(data []byte) error {
	if err := d.User.UnmarshalJSON(data); err != nil {
		return err
	}
	var aux struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.Password = aux.Password
	return nil
}
