package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// Builder and provisioner types used by the project's template.
const (
	BuilderAmazonEBS = "amazon-ebs"
	ProvisionerShell = "shell"
)

// Default sizes, in GiB, of the two volumes attached to the build instance.
const (
	BootVolumeSize = 16
	DataVolumeSize = 120
)

// Manifest is a Packer JSON template.
type Manifest struct {
	Builders     []Builder     `json:"builders"`
	Provisioners []Provisioner `json:"provisioners"`
}

// Builder is an amazon-ebs builder definition.
type Builder struct {
	Type    string `json:"type"`
	Profile string `json:"profile"`
	Region  string `json:"region"`

	SourceAMIFilter SourceAMIFilter `json:"source_ami_filter"`

	InstanceType string `json:"instance_type"`
	SSHUsername  string `json:"ssh_username"`

	// AMIName must contain {{timestamp}} so successive builds get
	// distinct names.
	AMIName string `json:"ami_name"`

	IAMInstanceProfile string `json:"iam_instance_profile"`

	// LaunchBlockDeviceMappings holds the boot volume first and the data
	// volume second.
	LaunchBlockDeviceMappings []BlockDevice `json:"launch_block_device_mappings"`
}

// SourceAMIFilter selects the base image. When several images match,
// MostRecent picks the newest one.
type SourceAMIFilter struct {
	Filters    map[string]string `json:"filters"`
	Owners     []string          `json:"owners"`
	MostRecent bool              `json:"most_recent"`
}

// BlockDevice is one EBS volume attached to the build instance.
type BlockDevice struct {
	DeviceName          string `json:"device_name"`
	VolumeSize          int    `json:"volume_size"`
	VolumeType          string `json:"volume_type"`
	DeleteOnTermination bool   `json:"delete_on_termination"`
}

// Provisioner customizes the image after boot.
type Provisioner struct {
	Type   string `json:"type"`
	Script string `json:"script"`
}

// Default returns the project's image build template.
func Default() *Manifest {
	return &Manifest{
		Builders: []Builder{{
			Type:    BuilderAmazonEBS,
			Profile: "default",
			Region:  "us-east-1",
			SourceAMIFilter: SourceAMIFilter{
				Filters: map[string]string{
					"virtualization-type": "hvm",
					"name":                "Deep Learning AMI (Ubuntu)*",
					"root-device-type":    "ebs",
				},
				Owners:     []string{"898082745236"},
				MostRecent: true,
			},
			InstanceType:       "p2.xlarge",
			SSHUsername:        "ubuntu",
			AMIName:            "speech-enhancement {{timestamp}}",
			IAMInstanceProfile: "speech-enhancement-packer",
			LaunchBlockDeviceMappings: []BlockDevice{
				{
					DeviceName:          "/dev/sda1",
					VolumeSize:          BootVolumeSize,
					VolumeType:          "gp2",
					DeleteOnTermination: true,
				},
				{
					DeviceName:          "/dev/sdf",
					VolumeSize:          DataVolumeSize,
					VolumeType:          "gp2",
					DeleteOnTermination: true,
				},
			},
		}},
		Provisioners: []Provisioner{{
			Type:   ProvisionerShell,
			Script: "setup-ami.sh",
		}},
	}
}

// Parse decodes a template. Comments and trailing commas are stripped
// first; unknown keys are rejected so a render never silently drops them.
// The data must hold exactly one JSON object.
func Parse(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.DisallowUnknownFields()

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, model.WrapCLIError(model.ExitManifestInvalid, "failed to parse manifest", err)
	}
	if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = fmt.Errorf("unexpected data after offset %d", dec.InputOffset())
		}
		return nil, model.WrapCLIError(model.ExitManifestInvalid, "failed to parse manifest", err)
	}
	return &m, nil
}

// Load reads and parses the template at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, model.WrapCLIError(model.ExitManifestInvalid,
				fmt.Sprintf("manifest not found: %s", path), err)
		}
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Marshal encodes m as indented JSON with a trailing newline. Output is
// stable: struct fields keep their declaration order and filter keys are
// sorted.
func Marshal(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Write marshals m to path, creating parent directories as needed.
func Write(path string, m *Manifest) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	return nil
}

// Clone returns a deep copy of m.
func (m *Manifest) Clone() *Manifest {
	out := &Manifest{
		Builders:     slices.Clone(m.Builders),
		Provisioners: slices.Clone(m.Provisioners),
	}
	for i := range out.Builders {
		b := &out.Builders[i]
		b.SourceAMIFilter.Filters = maps.Clone(b.SourceAMIFilter.Filters)
		b.SourceAMIFilter.Owners = slices.Clone(b.SourceAMIFilter.Owners)
		b.LaunchBlockDeviceMappings = slices.Clone(b.LaunchBlockDeviceMappings)
	}
	return out
}

// Overrides retargets a template. Empty fields leave the template alone.
type Overrides struct {
	Region       string
	InstanceType string
}

// Apply returns a copy of m with the overrides applied to every builder.
// Nothing but the overridden fields changes.
func Apply(m *Manifest, o Overrides) *Manifest {
	out := m.Clone()
	for i := range out.Builders {
		if o.Region != "" {
			out.Builders[i].Region = o.Region
		}
		if o.InstanceType != "" {
			out.Builders[i].InstanceType = o.InstanceType
		}
	}
	return out
}

var timestampRe = regexp.MustCompile(`\{\{\s*timestamp\s*\}\}`)

// ImageName resolves the builder's AMI name the way Packer does, with
// {{timestamp}} replaced by the Unix time of the build.
func ImageName(m *Manifest, at time.Time) (string, error) {
	if len(m.Builders) == 0 {
		return "", model.NewCLIError(model.ExitManifestInvalid, "manifest has no builders")
	}
	return timestampRe.ReplaceAllLiteralString(m.Builders[0].AMIName, strconv.FormatInt(at.Unix(), 10)), nil
}
