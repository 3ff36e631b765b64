// Package permission evaluates role ranks and permission sets.
//
// # Model
//
// Roles form a total order configured at startup (lowest first). Each role
// grants a set of named permissions, and [Hierarchy.PermissionsOf] returns the
// cumulative set: a role holds everything its own grant lists plus everything
// held by every lower role. Permission names are mapped to bits by a
// [Registry], so a role's permission set is a [Mask64].
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import the engine, jwt, or session packages.
//   - Change the role order after construction.
package permission
