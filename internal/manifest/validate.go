package manifest

import (
	"fmt"
	"strings"
)

// ValidationError is one violated rule of the template.
type ValidationError struct {
	// Field is the JSON path of the offending value, e.g.
	// "builders[0].source_ami_filter.most_recent".
	Field string

	// Message describes what is wrong with the value.
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest validation error: %s: %s", e.Field, e.Message)
}

// Validate checks the template's invariants and returns every violation
// (an empty list means the template is valid).
//
// Checks performed:
//   - exactly one builder, with type, region, instance type, SSH user and
//     instance profile set
//   - the source filter has a name pattern and an owner, and most_recent
//     is true so exactly one image is chosen when several match
//   - the AMI name contains {{timestamp}}
//   - two block devices with distinct names, the boot volume strictly
//     smaller than the data volume
//   - exactly one shell provisioner with a script
func Validate(m *Manifest) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if len(m.Builders) != 1 {
		add("builders", "expected exactly one builder, found %d", len(m.Builders))
	}
	for i, b := range m.Builders {
		prefix := fmt.Sprintf("builders[%d]", i)

		required := []struct{ key, value string }{
			{"type", b.Type},
			{"region", b.Region},
			{"instance_type", b.InstanceType},
			{"ssh_username", b.SSHUsername},
			{"ami_name", b.AMIName},
			{"iam_instance_profile", b.IAMInstanceProfile},
		}
		for _, r := range required {
			if strings.TrimSpace(r.value) == "" {
				add(prefix+"."+r.key, "must not be empty")
			}
		}

		if b.AMIName != "" && !timestampRe.MatchString(b.AMIName) {
			add(prefix+".ami_name", "must contain {{timestamp}} so each build gets a unique name")
		}

		f := b.SourceAMIFilter
		if !f.MostRecent {
			add(prefix+".source_ami_filter.most_recent", "must be true to select a single source image")
		}
		if f.Filters["name"] == "" {
			add(prefix+".source_ami_filter.filters.name", "must not be empty")
		}
		if len(f.Owners) == 0 {
			add(prefix+".source_ami_filter.owners", "must list at least one owner")
		}

		errs = append(errs, validateDevices(prefix+".launch_block_device_mappings", b.LaunchBlockDeviceMappings)...)
	}

	if len(m.Provisioners) != 1 {
		add("provisioners", "expected exactly one provisioner, found %d", len(m.Provisioners))
	}
	for i, p := range m.Provisioners {
		prefix := fmt.Sprintf("provisioners[%d]", i)
		if p.Type != ProvisionerShell {
			add(prefix+".type", "expected %q, found %q", ProvisionerShell, p.Type)
		}
		if p.Script == "" {
			add(prefix+".script", "must not be empty")
		}
	}

	return errs
}

func validateDevices(field string, devices []BlockDevice) []ValidationError {
	var errs []ValidationError
	if len(devices) != 2 {
		return append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("expected a boot and a data volume, found %d devices", len(devices)),
		})
	}

	for i, d := range devices {
		if d.DeviceName == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("%s[%d].device_name", field, i), Message: "must not be empty"})
		}
		if d.VolumeSize <= 0 {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("%s[%d].volume_size", field, i), Message: "must be positive"})
		}
	}

	boot, data := devices[0], devices[1]
	if boot.DeviceName != "" && boot.DeviceName == data.DeviceName {
		errs = append(errs, ValidationError{
			Field:   field + "[1].device_name",
			Message: fmt.Sprintf("duplicates boot device %s", boot.DeviceName),
		})
	}
	if boot.VolumeSize >= data.VolumeSize {
		errs = append(errs, ValidationError{
			Field:   field + "[0].volume_size",
			Message: fmt.Sprintf("boot volume (%d) must be smaller than data volume (%d)", boot.VolumeSize, data.VolumeSize),
		})
	}
	return errs
}
