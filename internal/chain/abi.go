package chain

// passportABI is the subset of the passport contract consumed by the client.
const passportABI = `[
  {"type":"function","name":"getPassport","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"string"},{"name":"","type":"string"},{"name":"","type":"uint256"},{"name":"","type":"uint256"}]},
  {"type":"function","name":"createPassport","stateMutability":"payable",
   "inputs":[{"name":"name","type":"string"},{"name":"placeOfBirth","type":"string"},{"name":"dateOfBirth","type":"uint256"},{"name":"uri","type":"string"}],
   "outputs":[]},
  {"type":"function","name":"MINT_PRICE","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"PassportCreated","anonymous":false,"inputs":[{"name":"user","type":"address","indexed":false}]},
  {"type":"error","name":"AccessDenied","inputs":[]},
  {"type":"error","name":"InsufficientAmount","inputs":[]},
  {"type":"error","name":"InsufficientValue","inputs":[]},
  {"type":"error","name":"InvalidEAS","inputs":[]},
  {"type":"error","name":"InvalidLength","inputs":[]},
  {"type":"error","name":"NotPayable","inputs":[]},
  {"type":"error","name":"PassportAlreadyMinted","inputs":[]},
  {"type":"error","name":"PassportCannotBeTransfered","inputs":[]},
  {"type":"error","name":"PassportNotMinted","inputs":[]},
  {"type":"error","name":"TransferFailed","inputs":[]}
]`
