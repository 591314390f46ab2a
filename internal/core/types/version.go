// Package types holds small value types shared across the wire model.
package types

import (
	"encoding/json"
	"fmt"
)

const VersionTypeName = "joynr.types.Version"

// Version is the interface version a provider implements.
type Version struct {
	MajorVersion int32
	MinorVersion int32
}

func NewVersion(major, minor int32) *Version {
	return &Version{MajorVersion: major, MinorVersion: minor}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.MajorVersion, v.MinorVersion)
}

type wireVersion struct {
	TypeName     string `json:"_typeName"`
	MajorVersion int32  `json:"majorVersion"`
	MinorVersion int32  `json:"minorVersion"`
}

func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireVersion{
		TypeName:     VersionTypeName,
		MajorVersion: v.MajorVersion,
		MinorVersion: v.MinorVersion,
	})
}

func (v *Version) UnmarshalJSON(data []byte) error {
	var w wireVersion
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v.MajorVersion = w.MajorVersion
	v.MinorVersion = w.MinorVersion
	return nil
}
