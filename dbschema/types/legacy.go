package types

import "encoding/json"

// Legacy snapshots (ingested before structured capture existed) stored some
// categories as arrays of bare name strings rather than objects. The custom
// unmarshalers below accept both forms so old schema_versions rows remain
// comparable: a bare string populates only the identity fields and sets
// NameOnly, which downstream comparison uses to skip modified detection.

func legacyName(data []byte) (string, bool) {
	if len(data) == 0 || data[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false
	}
	return s, true
}

// UnmarshalJSON accepts either a structured table object or a legacy bare name.
func (t *DBTable) UnmarshalJSON(data []byte) error {
	if name, ok := legacyName(data); ok {
		*t = DBTable{Name: name, NameOnly: true}
		return nil
	}
	type alias DBTable
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*t = DBTable(a)
	return nil
}

func (f *DBFunction) UnmarshalJSON(data []byte) error {
	if name, ok := legacyName(data); ok {
		*f = DBFunction{Name: name, NameOnly: true}
		return nil
	}
	type alias DBFunction
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = DBFunction(a)
	return nil
}

// UnmarshalJSON accepts a legacy "table.policy" composite string or a
// structured policy object.
func (p *DBRLSPolicy) UnmarshalJSON(data []byte) error {
	if name, ok := legacyName(data); ok {
		*p = DBRLSPolicy{Name: name, NameOnly: true}
		return nil
	}
	type alias DBRLSPolicy
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = DBRLSPolicy(a)
	return nil
}

func (t *DBTrigger) UnmarshalJSON(data []byte) error {
	if name, ok := legacyName(data); ok {
		*t = DBTrigger{Name: name, NameOnly: true}
		return nil
	}
	type alias DBTrigger
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*t = DBTrigger(a)
	return nil
}

func (i *DBIndex) UnmarshalJSON(data []byte) error {
	if name, ok := legacyName(data); ok {
		*i = DBIndex{Name: name, NameOnly: true}
		return nil
	}
	type alias DBIndex
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*i = DBIndex(a)
	return nil
}

func (e *DBExtension) UnmarshalJSON(data []byte) error {
	if name, ok := legacyName(data); ok {
		*e = DBExtension{Name: name, NameOnly: true}
		return nil
	}
	type alias DBExtension
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = DBExtension(a)
	return nil
}

func (e *DBEnum) UnmarshalJSON(data []byte) error {
	if name, ok := legacyName(data); ok {
		*e = DBEnum{Name: name, NameOnly: true}
		return nil
	}
	type alias DBEnum
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = DBEnum(a)
	return nil
}
