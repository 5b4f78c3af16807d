// openstack provides a 'drivers.Provisioner' implementation which boots
// instances on an OpenStack cloud for a test-orchestration host.
//
// # Overview
//
// The host framework calls Create and Destroy with a mutable state bag it
// persists between calls. Everything else (credentials, server shape, SSH
// and floating IP behavior) comes in through the flat Config.
//
// Lifecycle: Create -> (host runs its tests over SSH) -> Destroy
//
// # Phase: Create
//
// The driver performs the following steps in order:
//  1. Image + flavor resolution - by id, exact name, or regular expression
//     over the paginated listings (concurrently, they are independent)
//  2. Keypair - a provided Nova keypair is used as-is; otherwise an ED25519
//     key is generated locally and its public half imported
//  3. Server - booted with the resolved image/flavor, optional networks,
//     security groups, user data, config drive and metadata, then waited on
//     until ACTIVE (an ERROR status fails fast with the fault message)
//  4. Floating IP - an explicit address is associated, or one is picked from
//     the configured pool; pool selection is serialized by a package mutex
//     since the cloud will happily hand the same DOWN address to two callers
//  5. SSH bootstrap - wait for the SSH port, connect with the key and/or
//     password, install the public key when only a password was available,
//     then run any configured bootstrap commands
//
// The server id and resolved hostname are recorded in the state bag as each
// becomes known, so a failed Create can always be cleaned up by Destroy.
//
// # Phase: Destroy
//
// Resources are released in reverse creation order using a destructor stack:
// the pool-allocated floating IP is deleted (an explicit one is only
// disassociated), the server is deleted and waited out of existence, and a
// generated keypair is removed from the cloud along with its local key file.
// A bag with no recorded server is a no-op.
package openstack

import "github.com/harnesslab/openstack-driver/internal/drivers"

var _ drivers.Provisioner = (*Driver)(nil)
