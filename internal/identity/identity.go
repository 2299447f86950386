// Package identity implements operator authentication for gridledger nodes.
//
// It provides:
//   - OperatorTokens: issues and verifies HS256 operator JWTs
//   - RequireOperator: Gin middleware enforcing a Bearer operator token
package identity
