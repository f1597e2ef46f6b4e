package restart

// WithExecFunc exposes the execve seam to the external test package.
var WithExecFunc = withExecFunc
