// Package manifest models the Packer template that bakes the deep learning
// machine image used for training.
//
// The template has one amazon-ebs builder and one shell provisioner. The
// builder picks the newest Deep Learning AMI matching its source filter,
// boots it with a small OS volume and a large data volume, runs
// setup-ami.sh, and saves the result under a timestamped name.
//
// Key responsibilities:
//   - Render the project's template (Default, Marshal, Write)
//   - Load hand-edited templates, JSONC comments allowed (Load, Parse)
//   - Enforce the template's invariants (Validate)
//   - Retarget a template to another region or instance type without
//     touching anything else (Apply, Diff)
//   - Drive the external packer binary (Build)
package manifest
