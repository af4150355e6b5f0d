package cells

// Version is the release version of the cells module.
const Version = "0.1.0"
