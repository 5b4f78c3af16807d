// ssh implements a facade over the 'x/crypto/ssh' package, simplifying the
// workflows a provisioning driver needs when bootstrapping access to a fresh
// instance:
//   - ED25519 key generation, conversion and marshaling
//   - private key loading from disk (with optional passphrase)
//   - SSH client construction with key or password authentication
//   - SSH client command execution and sequencing
//
// NOTE: ALL errors returned by this package will be wrapped with well-known (
// 'errors.Is(...') errors.
package ssh
